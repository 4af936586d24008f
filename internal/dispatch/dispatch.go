// Package dispatch sends review request emails to the customers of a
// location. Sends are strictly sequential with a fixed pause between them
// to protect sender reputation; the loop never runs in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/reviewflow/internal/distlock"
	"github.com/foxzi/reviewflow/internal/mailer"
	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/models"
	"github.com/foxzi/reviewflow/internal/ratelimit"
	"github.com/foxzi/reviewflow/internal/template"
	"github.com/foxzi/reviewflow/internal/tracking"
)

var (
	// ErrNoRecipients is returned when no customer is eligible for sending
	ErrNoRecipients = errors.New("no eligible recipients")
	// ErrDispatchInProgress is returned when another run holds the location
	ErrDispatchInProgress = errors.New("a dispatch for this location is already running")
)

// DefaultDelay is the pause between two consecutive sends
const DefaultDelay = 500 * time.Millisecond

// CustomerStore is the subset of the customer repository used for sending
type CustomerStore interface {
	SelectForDispatch(ctx context.Context, userID, locationID string, ids []string) ([]models.Customer, error)
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	Release(ctx context.Context, id string) error
	RecordSendOutcome(ctx context.Context, id string, out models.SendOutcome) error
}

// BatchStore is the subset of the batch repository used for sending
type BatchStore interface {
	RefreshCounts(ctx context.Context, id string) (models.BatchCounts, error)
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error
}

// Renderer renders a review request email
type Renderer interface {
	Render(req template.ReviewRequest) (*template.RenderResult, error)
}

// Quota consumes one send from a user's allowance
type Quota interface {
	Allow(ctx context.Context, userID string) (*ratelimit.Result, error)
}

// Request selects recipients and provides the email content
type Request struct {
	UserID     string `json:"user_id"`
	LocationID string `json:"location_id"`
	// CustomerIDs restricts the run to these customers when non-empty
	CustomerIDs  []string `json:"customer_ids,omitempty"`
	BusinessName string   `json:"business_name"`
	ReviewLink   string   `json:"review_link"`
	SenderName   string   `json:"sender_name"`
}

// Status is the outcome of one recipient
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome for one recipient
type Result struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	SentFrom   string `json:"sent_from,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates a run. Failed sends are part of a successful run.
type Summary struct {
	Total         int      `json:"total"`
	Sent          int      `json:"sent"`
	Failed        int      `json:"failed"`
	Skipped       int      `json:"skipped"`
	QuotaExceeded bool     `json:"quota_exceeded,omitempty"`
	Results       []Result `json:"results"`
}

// Progress is reported after every recipient
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ProgressFunc receives progress updates
type ProgressFunc func(Progress)

// Options holds the optional collaborators of an Orchestrator
type Options struct {
	Tracking tracking.URLs
	Locker   distlock.Locker
	Quota    Quota
	// Delay between sends; zero means DefaultDelay, negative disables it
	Delay   time.Duration
	Metrics *metrics.Metrics
}

// Orchestrator runs review request campaigns
type Orchestrator struct {
	customers CustomerStore
	batches   BatchStore
	renderer  Renderer
	transport mailer.Transport
	urls      tracking.URLs
	locker    distlock.Locker
	quota     Quota
	delay     time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator
func New(customers CustomerStore, batches BatchStore, renderer Renderer, transport mailer.Transport, opts Options, logger *slog.Logger) *Orchestrator {
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	if delay < 0 {
		delay = 0
	}
	locker := opts.Locker
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}

	return &Orchestrator{
		customers: customers,
		batches:   batches,
		renderer:  renderer,
		transport: transport,
		urls:      opts.Tracking,
		locker:    locker,
		quota:     opts.Quota,
		delay:     delay,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "dispatch"),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func lockKey(userID, locationID string) string {
	return "dispatch:" + userID + ":" + locationID
}

// SendReviewRequests emails every eligible customer of the location, one at
// a time. Customers that have reviewed already are never selected; failed
// customers are retried. progress may be nil.
func (o *Orchestrator) SendReviewRequests(ctx context.Context, req Request, progress ProgressFunc) (*Summary, error) {
	if req.UserID == "" || req.LocationID == "" {
		return nil, fmt.Errorf("user_id and location_id are required")
	}
	if req.ReviewLink == "" {
		return nil, fmt.Errorf("review_link is required")
	}

	release, err := o.locker.Acquire(ctx, lockKey(req.UserID, req.LocationID))
	if errors.Is(err, distlock.ErrLocked) {
		o.metrics.IncDispatchRejected("locked")
		return nil, ErrDispatchInProgress
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("failed to release dispatch lock", "location_id", req.LocationID, "error", err)
		}
	}()

	recipients, err := o.customers.SelectForDispatch(ctx, req.UserID, req.LocationID, req.CustomerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipients: %w", err)
	}
	if len(recipients) == 0 {
		o.metrics.IncDispatchRejected("no_recipients")
		return nil, ErrNoRecipients
	}

	o.metrics.DispatchStarted()
	o.logger.Info("dispatch started",
		"user_id", req.UserID,
		"location_id", req.LocationID,
		"recipients", len(recipients),
		"transport", o.transport.Name(),
		"tracking", o.urls.Enabled(),
	)

	summary := &Summary{Total: len(recipients), Results: make([]Result, 0, len(recipients))}
	batchIDs := make(map[string]struct{})
	// Outcomes of attempted sends are written even if ctx is cancelled
	writeCtx := context.WithoutCancel(ctx)
	stopReason := ""

	for i, c := range recipients {
		if stopReason == "" && i > 0 {
			if err := o.sleep(ctx, o.delay); err != nil {
				stopReason = "cancelled"
			}
		}

		var res Result
		if stopReason != "" {
			res = skipped(c, stopReason)
		} else {
			var err error
			res, err = o.deliver(ctx, writeCtx, req, c)
			if errors.Is(err, ratelimit.ErrQuotaExceeded) {
				stopReason = err.Error()
				summary.QuotaExceeded = true
				o.metrics.IncQuotaExceeded()
			}
		}
		if res.Status != StatusSkipped && c.BatchID != "" {
			batchIDs[c.BatchID] = struct{}{}
		}

		switch res.Status {
		case StatusSent:
			summary.Sent++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
			o.metrics.IncEmailSkipped(o.transport.Name())
		}
		summary.Results = append(summary.Results, res)

		if progress != nil {
			progress(Progress{Current: i + 1, Total: summary.Total, Sent: summary.Sent, Failed: summary.Failed})
		}
	}

	for id := range batchIDs {
		o.refreshBatch(writeCtx, id)
	}

	result := "ok"
	if stopReason != "" {
		result = "stopped"
	}
	o.metrics.DispatchFinished(result)
	o.logger.Info("dispatch finished",
		"user_id", req.UserID,
		"location_id", req.LocationID,
		"total", summary.Total,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"stop_reason", stopReason,
	)
	return summary, nil
}

func skipped(c models.Customer, reason string) Result {
	return Result{CustomerID: c.ID, Email: c.Email, Name: c.Name, Status: StatusSkipped, Error: reason}
}

// deliver claims, renders, sends and records one recipient. It returns
// ratelimit.ErrQuotaExceeded when the run has to stop.
func (o *Orchestrator) deliver(ctx, writeCtx context.Context, req Request, c models.Customer) (Result, error) {
	claimed, err := o.customers.Claim(ctx, c.ID, o.now())
	if err != nil {
		o.logger.Error("failed to claim customer", "customer_id", c.ID, "error", err)
		return skipped(c, "claim failed"), nil
	}
	if !claimed {
		return skipped(c, "claimed by another run"), nil
	}

	if o.quota != nil {
		q, err := o.quota.Allow(ctx, req.UserID)
		if err != nil || !q.Allowed {
			if err != nil {
				o.logger.Error("quota check failed", "user_id", req.UserID, "error", err)
			}
			if err := o.customers.Release(writeCtx, c.ID); err != nil {
				o.logger.Error("failed to release claim", "customer_id", c.ID, "error", err)
			}
			return skipped(c, ratelimit.ErrQuotaExceeded.Error()), ratelimit.ErrQuotaExceeded
		}
	}

	res := Result{CustomerID: c.ID, Email: c.Email, Name: c.Name}
	outcome := models.SendOutcome{ReviewLink: req.ReviewLink}

	sent, err := o.send(ctx, req, c)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		outcome.Status = models.EmailFailed
		outcome.Error = res.Error
		o.logger.Warn("review request failed", "customer_id", c.ID, "email", c.Email, "error", err)
	} else {
		if sent == nil {
			sent = &mailer.Result{}
		}
		res.Status = StatusSent
		res.MessageID = sent.MessageID
		res.SentFrom = sent.SentFrom
		outcome.Status = models.EmailSent
		outcome.MessageID = sent.MessageID
		outcome.SentFrom = sent.SentFrom
		o.logger.Debug("review request sent", "customer_id", c.ID, "email", c.Email, "message_id", sent.MessageID)
	}

	outcome.At = o.now()
	if err := o.customers.RecordSendOutcome(writeCtx, c.ID, outcome); err != nil {
		// The row stays claimed until stale claims are released
		o.logger.Error("failed to record send outcome", "customer_id", c.ID, "status", outcome.Status, "error", err)
	}
	return res, nil
}

func (o *Orchestrator) send(ctx context.Context, req Request, c models.Customer) (*mailer.Result, error) {
	business := req.BusinessName
	if business == "" {
		business = c.BusinessName
	}

	rendered, err := o.renderer.Render(template.ReviewRequest{
		CustomerName: c.Name,
		BusinessName: business,
		LocationName: c.LocationName,
		SenderName:   req.SenderName,
		ReviewURL:    o.urls.Click(c.ID, req.ReviewLink),
		PixelURL:     o.urls.Pixel(c.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	start := time.Now()
	result, err := o.transport.Send(ctx, &mailer.Message{
		To:         c.Email,
		ToName:     c.Name,
		Subject:    rendered.Subject,
		HTML:       rendered.HTML,
		Text:       rendered.Text,
		SenderName: req.SenderName,
		Headers:    map[string]string{"X-Customer-ID": c.ID},
	})

	status := string(StatusSent)
	if err != nil {
		status = string(StatusFailed)
	}
	o.metrics.ObserveSend(o.transport.Name(), status, time.Since(start).Seconds())
	return result, err
}

// refreshBatch recomputes a batch's counters from its customers and moves
// it to completed once nothing is pending.
func (o *Orchestrator) refreshBatch(ctx context.Context, batchID string) {
	counts, err := o.batches.RefreshCounts(ctx, batchID)
	if err != nil {
		o.logger.Error("failed to refresh batch counts", "batch_id", batchID, "error", err)
		return
	}

	status := models.BatchSending
	if counts.Pending == 0 {
		status = models.BatchCompleted
	}
	if err := o.batches.UpdateStatus(ctx, batchID, status); err != nil {
		o.logger.Error("failed to update batch status", "batch_id", batchID, "error", err)
	}
}
