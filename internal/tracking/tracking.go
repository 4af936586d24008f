// Package tracking records review-request opens and clicks. Both events
// are first-write-wins; repeated pixel loads and clicks never change the
// stored timestamps.
package tracking

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/models"
)

// URLs builds the tracking links embedded in review request emails
type URLs struct {
	base string
}

// NewURLs creates a URL builder for the public tracking base, e.g.
// https://reviews.example.com. An empty base disables tracking.
func NewURLs(base string) URLs {
	return URLs{base: strings.TrimRight(strings.TrimSpace(base), "/")}
}

// Enabled reports whether a tracking base is configured
func (u URLs) Enabled() bool {
	return u.base != ""
}

// Pixel returns the open-tracking image URL, or "" when tracking is disabled
func (u URLs) Pixel(customerID string) string {
	if !u.Enabled() {
		return ""
	}
	return u.base + "/track/open/" + url.PathEscape(customerID)
}

// Click returns the redirect URL for a customer. Without a tracking base
// the raw review link is used.
func (u URLs) Click(customerID, reviewLink string) string {
	if !u.Enabled() {
		return reviewLink
	}
	return u.base + "/track/click/" + url.PathEscape(customerID)
}

// Store is the subset of the customer repository used for tracking
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	MarkOpened(ctx context.Context, id string, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, id string, at time.Time) (bool, error)
}

// Service applies tracking events to customer records
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a tracking service. m may be nil.
func NewService(store Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "tracking"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordOpen sets the open timestamp if it is not set yet. Unknown ids are
// ignored.
func (s *Service) RecordOpen(ctx context.Context, customerID string) error {
	first, err := s.store.MarkOpened(ctx, customerID, s.now())
	if err != nil {
		return err
	}
	if first {
		s.metrics.IncOpen()
		s.logger.Debug("email opened", "customer_id", customerID)
	}
	return nil
}

// RecordClick sets the click timestamp if it is not set yet and returns the
// customer's review link. found is false for unknown ids.
func (s *Service) RecordClick(ctx context.Context, customerID string) (link string, found bool, err error) {
	c, err := s.store.GetByID(ctx, customerID)
	if err != nil {
		return "", false, err
	}
	if c == nil {
		return "", false, nil
	}

	first, err := s.store.MarkClicked(ctx, customerID, s.now())
	if err != nil {
		// The redirect still works without the timestamp
		return c.ReviewLink, true, err
	}
	if first {
		s.metrics.IncClick()
		s.logger.Debug("review link clicked", "customer_id", customerID)
	}
	return c.ReviewLink, true, nil
}
