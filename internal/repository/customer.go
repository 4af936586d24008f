package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/reviewflow/internal/models"
	"github.com/google/uuid"
)

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, user_id, location_id, COALESCE(location_name, ''), COALESCE(business_name, ''),
	COALESCE(batch_id, ''), row_number, name, email, COALESCE(phone, ''), COALESCE(review_link, ''),
	email_status, email_sent_at, email_opened_at, email_clicked_at, claimed_at,
	COALESCE(message_id, ''), COALESCE(sent_from, ''), COALESCE(last_error, ''),
	request_count, last_request_sent_at, has_reviewed, review_date,
	COALESCE(review_rating, 0), COALESCE(review_text, ''), created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }, c *models.Customer) error {
	return row.Scan(&c.ID, &c.UserID, &c.LocationID, &c.LocationName, &c.BusinessName,
		&c.BatchID, &c.RowNumber, &c.Name, &c.Email, &c.Phone, &c.ReviewLink,
		&c.EmailStatus, &c.EmailSentAt, &c.EmailOpenedAt, &c.EmailClickedAt, &c.ClaimedAt,
		&c.MessageID, &c.SentFrom, &c.LastError,
		&c.RequestCount, &c.LastRequestSentAt, &c.HasReviewed, &c.ReviewDate,
		&c.ReviewRating, &c.ReviewText, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CustomerRepository) queryCustomers(ctx context.Context, query string, args ...any) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		var c models.Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ExistingEmails returns the set of emails already stored for a location
func (r *CustomerRepository) ExistingEmails(ctx context.Context, userID, locationID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT email FROM customers WHERE user_id = ? AND location_id = ?", userID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing emails: %w", err)
	}
	defer rows.Close()

	emails := make(map[string]struct{})
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails[email] = struct{}{}
	}
	return emails, rows.Err()
}

// InsertMany inserts customers in a single transaction and returns how many
// rows were written. Rows whose email already exists for the location are
// skipped.
func (r *CustomerRepository) InsertMany(ctx context.Context, customers []*models.Customer) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO customers (id, user_id, location_id, location_name, business_name, batch_id,
			row_number, name, email, phone, email_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, location_id, email) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, c := range customers {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.EmailStatus = models.EmailPending
		c.CreatedAt = now
		c.UpdatedAt = now

		res, err := stmt.ExecContext(ctx,
			c.ID, c.UserID, c.LocationID, c.LocationName, c.BusinessName, c.BatchID,
			c.RowNumber, c.Name, c.Email, c.Phone, c.EmailStatus, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert customer %s: %w", c.Email, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit customers: %w", err)
	}
	return inserted, nil
}

// GetByID returns a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	c := &models.Customer{}
	err := scanCustomer(r.db.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id), c)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns customers of a location with filtering
func (r *CustomerRepository) List(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, int, error) {
	where := " WHERE user_id = ? AND location_id = ?"
	args := []any{filter.UserID, filter.LocationID}

	if filter.BatchID != "" {
		where += " AND batch_id = ?"
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		where += " AND email_status = ?"
		args = append(args, filter.Status)
	}
	if filter.Reviewed != nil {
		where += " AND has_reviewed = ?"
		args = append(args, *filter.Reviewed)
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR email LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + customerColumns + " FROM customers" + where + " ORDER BY created_at, row_number"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	customers, err := r.queryCustomers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// SelectForDispatch returns unreviewed customers of a location whose email
// is pending or failed. When ids is non-empty only those customers are
// considered.
func (r *CustomerRepository) SelectForDispatch(ctx context.Context, userID, locationID string, ids []string) ([]models.Customer, error) {
	query := "SELECT " + customerColumns + ` FROM customers
		WHERE user_id = ? AND location_id = ? AND has_reviewed = 0
		AND email_status IN ('pending', 'failed')`
	args := []any{userID, locationID}

	if len(ids) > 0 {
		query += " AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at, row_number"

	return r.queryCustomers(ctx, query, args...)
}

// Claim moves a customer to sending if it is still eligible. It returns
// false when another run already holds or finished the row.
func (r *CustomerRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET email_status = 'sending', claimed_at = ?, updated_at = ?
		WHERE id = ? AND has_reviewed = 0 AND email_status IN ('pending', 'failed')`,
		at, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim customer: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Release returns a claimed customer to pending without counting an attempt
func (r *CustomerRepository) Release(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE customers SET email_status = 'pending', claimed_at = NULL, updated_at = ?
		WHERE id = ? AND email_status = 'sending'`,
		time.Now().UTC(), id,
	)
	return err
}

// RecordSendOutcome writes the result of a send attempt. The sent timestamp
// is only set on success.
func (r *CustomerRepository) RecordSendOutcome(ctx context.Context, id string, out models.SendOutcome) error {
	var sentAt any
	if out.Status == models.EmailSent {
		sentAt = out.At
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE customers SET
			email_status = ?,
			email_sent_at = COALESCE(?, email_sent_at),
			review_link = ?,
			message_id = ?,
			sent_from = ?,
			last_error = ?,
			request_count = request_count + 1,
			last_request_sent_at = ?,
			claimed_at = NULL,
			updated_at = ?
		WHERE id = ?`,
		out.Status, sentAt, out.ReviewLink, out.MessageID, out.SentFrom, out.Error,
		out.At, out.At, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record send outcome: %w", err)
	}
	return nil
}

// MarkOpened sets the open timestamp once. It returns true on the first open.
func (r *CustomerRepository) MarkOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE customers SET email_opened_at = ?, updated_at = ? WHERE id = ? AND email_opened_at IS NULL",
		at, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark opened: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkClicked sets the click timestamp once. A click implies an open, so
// the open timestamp is filled in when missing.
func (r *CustomerRepository) MarkClicked(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET email_clicked_at = ?, email_opened_at = COALESCE(email_opened_at, ?), updated_at = ?
		WHERE id = ? AND email_clicked_at IS NULL`,
		at, at, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark clicked: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListAwaitingReview returns customers of a location that were sent a
// request and have not reviewed yet, oldest first.
func (r *CustomerRepository) ListAwaitingReview(ctx context.Context, userID, locationID string) ([]models.Customer, error) {
	return r.queryCustomers(ctx, "SELECT "+customerColumns+` FROM customers
		WHERE user_id = ? AND location_id = ? AND email_status = 'sent' AND has_reviewed = 0
		ORDER BY created_at, row_number`,
		userID, locationID)
}

// MarkReviewed attributes a review to a customer. A customer that already
// has a review is left untouched and false is returned.
func (r *CustomerRepository) MarkReviewed(ctx context.Context, id string, m models.ReviewMatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET has_reviewed = 1, review_date = ?, review_rating = ?, review_text = ?, updated_at = ?
		WHERE id = ? AND has_reviewed = 0`,
		m.Date, m.Rating, m.Text, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reviewed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountByStatus aggregates customer counters for a location
func (r *CustomerRepository) CountByStatus(ctx context.Context, userID, locationID string) (models.StatusCounts, error) {
	var c models.StatusCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN email_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_status = 'sending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_opened_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_clicked_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN has_reviewed = 1 THEN 1 ELSE 0 END), 0)
		FROM customers WHERE user_id = ? AND location_id = ?`,
		userID, locationID,
	).Scan(&c.Total, &c.Pending, &c.Sending, &c.Sent, &c.Failed, &c.Opened, &c.Clicked, &c.Reviewed)
	if err != nil {
		return c, fmt.Errorf("failed to count customers: %w", err)
	}
	return c, nil
}

// Delete removes a single customer
func (r *CustomerRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete customer: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByLocation removes every customer of a location
func (r *CustomerRepository) DeleteByLocation(ctx context.Context, userID, locationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM customers WHERE user_id = ? AND location_id = ?", userID, locationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete customers: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseStaleClaims returns rows stuck in sending since before cutoff to
// pending, e.g. after a crash mid-dispatch.
func (r *CustomerRepository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET email_status = 'pending', claimed_at = NULL, updated_at = ?
		WHERE email_status = 'sending' AND (claimed_at IS NULL OR claimed_at < ?)`,
		time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	return res.RowsAffected()
}

// BatchIDsWithStatus returns distinct batch ids having customers in status
func (r *CustomerRepository) BatchIDsWithStatus(ctx context.Context, status models.EmailStatus) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT batch_id FROM customers WHERE email_status = ? AND batch_id IS NOT NULL", status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
