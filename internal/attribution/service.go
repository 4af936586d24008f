package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/models"
)

// Store is the subset of the customer repository used for attribution
type Store interface {
	ListAwaitingReview(ctx context.Context, userID, locationID string) ([]models.Customer, error)
	MarkReviewed(ctx context.Context, id string, m models.ReviewMatch) (bool, error)
}

// MatchedCustomer describes one attributed review
type MatchedCustomer struct {
	CustomerID   string `json:"customer_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ReviewerName string `json:"reviewer_name"`
	Rating       int    `json:"rating"`
	Rule         Rule   `json:"rule"`
}

// Report is the result of MatchReviews
type Report struct {
	Matched          int               `json:"matched"`
	Total            int               `json:"total"`
	MatchedCustomers []MatchedCustomer `json:"matched_customers"`
}

// Service matches reviews against stored customers
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an attribution service. m may be nil.
func NewService(store Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "attribution"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MatchReviews attributes reviews to customers of a location that were
// sent a request and have not reviewed yet. Unmatched reviews are only
// counted in Total.
func (s *Service) MatchReviews(ctx context.Context, userID, locationID string, reviews []Review) (*Report, error) {
	report := &Report{Total: len(reviews), MatchedCustomers: []MatchedCustomer{}}
	if len(reviews) == 0 {
		return report, nil
	}

	customers, err := s.store.ListAwaitingReview(ctx, userID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	byID := make(map[string]models.Customer, len(customers))
	candidates := make([]Candidate, 0, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
		candidates = append(candidates, Candidate{ID: c.ID, Name: c.Name})
	}

	names := make([]string, len(reviews))
	for i, r := range reviews {
		names[i] = r.ReviewerName
	}

	outcome := Match(candidates, names)
	for _, a := range outcome.Assignments {
		review := reviews[a.ReviewIndex]
		date := review.Time
		if date.IsZero() {
			date = s.now()
		}

		ok, err := s.store.MarkReviewed(ctx, a.Candidate.ID, models.ReviewMatch{
			Date:   date.UTC(),
			Rating: int(review.Rating),
			Text:   review.Text,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			// Attributed by a concurrent run
			continue
		}

		c := byID[a.Candidate.ID]
		report.Matched++
		report.MatchedCustomers = append(report.MatchedCustomers, MatchedCustomer{
			CustomerID:   c.ID,
			Name:         c.Name,
			Email:        c.Email,
			ReviewerName: review.ReviewerName,
			Rating:       int(review.Rating),
			Rule:         a.Rule,
		})
	}

	s.metrics.ObserveMatch(report.Total, report.Matched)
	s.logger.Info("reviews matched",
		"user_id", userID,
		"location_id", locationID,
		"reviews", report.Total,
		"candidates", len(candidates),
		"matched", report.Matched,
	)
	return report, nil
}
