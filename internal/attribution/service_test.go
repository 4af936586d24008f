package attribution

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/foxzi/reviewflow/internal/db"
	"github.com/foxzi/reviewflow/internal/models"
	"github.com/foxzi/reviewflow/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupStore stores the given names as customers of loc-1. The first
// sent customers are marked as sent.
func setupStore(t *testing.T, sent int, names ...string) (*repository.Store, []models.Customer) {
	t.Helper()
	ctx := context.Background()

	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := repository.NewStore(d.DB)

	parsed := make([]models.ParsedCustomer, len(names))
	for i, n := range names {
		parsed[i] = models.ParsedCustomer{Name: n, Email: NormalizeName(n)[:3] + "@example.com", RowNumber: i + 2}
	}
	res, err := store.Ingest(ctx, models.BatchMeta{UserID: "user-1", LocationID: "loc-1", FileName: "c.csv"}, parsed)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	customers, _, err := store.Customers.List(ctx, models.CustomerFilter{UserID: "user-1", LocationID: "loc-1", BatchID: res.BatchID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, c := range customers[:sent] {
		err := store.Customers.RecordSendOutcome(ctx, c.ID, models.SendOutcome{Status: models.EmailSent, At: time.Now().UTC()})
		if err != nil {
			t.Fatalf("RecordSendOutcome() error = %v", err)
		}
	}
	return store, customers
}

func TestService_MatchReviews(t *testing.T) {
	ctx := context.Background()
	store, customers := setupStore(t, 2, "John Smith", "Ram Kumar", "Alice Wong")
	svc := NewService(store.Customers, nil, testLogger())

	reviewed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	reviews := []Review{
		{ReviewerName: "John S.", Rating: 5, Text: "Great", Time: reviewed},
		{ReviewerName: "Ram K", Rating: 4},
		// Alice was never sent a request
		{ReviewerName: "Alice Wong", Rating: 3},
	}

	report, err := svc.MatchReviews(ctx, "user-1", "loc-1", reviews)
	if err != nil {
		t.Fatalf("MatchReviews() error = %v", err)
	}
	if report.Matched != 2 || report.Total != 3 {
		t.Fatalf("report = %+v", report)
	}
	if report.MatchedCustomers[0].CustomerID != customers[0].ID || report.MatchedCustomers[1].CustomerID != customers[1].ID {
		t.Errorf("matched = %+v", report.MatchedCustomers)
	}

	john, _ := store.Customers.GetByID(ctx, customers[0].ID)
	if !john.HasReviewed || john.ReviewRating != 5 || john.ReviewText != "Great" {
		t.Errorf("john = %+v", john)
	}
	if john.ReviewDate == nil || !john.ReviewDate.Equal(reviewed) {
		t.Errorf("ReviewDate = %v, want %v", john.ReviewDate, reviewed)
	}

	ram, _ := store.Customers.GetByID(ctx, customers[1].ID)
	if ram.ReviewDate == nil {
		t.Error("missing review time should default to now")
	}

	// Matched customers leave the pool for later runs
	report, err = svc.MatchReviews(ctx, "user-1", "loc-1", reviews)
	if err != nil {
		t.Fatalf("second MatchReviews() error = %v", err)
	}
	if report.Matched != 0 || report.Total != 3 {
		t.Errorf("second report = %+v", report)
	}
}

func TestService_MatchReviewsEmpty(t *testing.T) {
	store, _ := setupStore(t, 0, "John Smith")
	svc := NewService(store.Customers, nil, testLogger())

	report, err := svc.MatchReviews(context.Background(), "user-1", "loc-1", nil)
	if err != nil {
		t.Fatalf("MatchReviews() error = %v", err)
	}
	if report.Matched != 0 || report.Total != 0 || report.MatchedCustomers == nil {
		t.Errorf("report = %+v", report)
	}
}
