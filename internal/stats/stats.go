// Package stats derives review request funnel figures for a location
package stats

import (
	"context"
	"math"

	"github.com/foxzi/reviewflow/internal/models"
)

// Stats is the funnel of one location. Rates are percentages of TotalSent
// rounded to one decimal, and zero when nothing was sent.
type Stats struct {
	TotalCustomers int     `json:"total_customers"`
	Pending        int     `json:"pending"`
	TotalSent      int     `json:"total_sent"`
	Failed         int     `json:"failed"`
	Opened         int     `json:"opened"`
	Clicked        int     `json:"clicked"`
	Reviewed       int     `json:"reviewed"`
	OpenRate       float64 `json:"open_rate"`
	ClickRate      float64 `json:"click_rate"`
	ReviewRate     float64 `json:"review_rate"`
}

// Counter loads raw customer counts
type Counter interface {
	CountByStatus(ctx context.Context, userID, locationID string) (models.StatusCounts, error)
}

// Aggregator computes stats from the customer store
type Aggregator struct {
	counter Counter
}

func NewAggregator(counter Counter) *Aggregator {
	return &Aggregator{counter: counter}
}

// ForLocation returns the funnel for a location
func (a *Aggregator) ForLocation(ctx context.Context, userID, locationID string) (*Stats, error) {
	c, err := a.counter.CountByStatus(ctx, userID, locationID)
	if err != nil {
		return nil, err
	}
	s := FromCounts(c)
	return &s, nil
}

// FromCounts computes stats from raw counts. Rows claimed by a running
// dispatch count as pending.
func FromCounts(c models.StatusCounts) Stats {
	return Stats{
		TotalCustomers: c.Total,
		Pending:        c.Pending + c.Sending,
		TotalSent:      c.Sent,
		Failed:         c.Failed,
		Opened:         c.Opened,
		Clicked:        c.Clicked,
		Reviewed:       c.Reviewed,
		OpenRate:       rate(c.Opened, c.Sent),
		ClickRate:      rate(c.Clicked, c.Sent),
		ReviewRate:     rate(c.Reviewed, c.Sent),
	}
}

func rate(n, sent int) float64 {
	if sent == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(sent)) / 10
}
