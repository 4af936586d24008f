package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/reviewflow/internal/models"
	"github.com/google/uuid"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, user_id, location_id, COALESCE(location_name, ''), COALESCE(business_name, ''),
	file_name, COALESCE(file_type, ''), file_size, COALESCE(source_key, ''),
	total_rows, valid_customers, in_file_duplicates, duplicate_customers,
	emails_sent, emails_failed, emails_pending, status, created_at, updated_at`

func scanBatch(row interface{ Scan(...any) error }, b *models.UploadBatch) error {
	return row.Scan(&b.ID, &b.UserID, &b.LocationID, &b.LocationName, &b.BusinessName,
		&b.FileName, &b.FileType, &b.FileSize, &b.SourceKey,
		&b.TotalRows, &b.ValidCustomers, &b.InFileDuplicates, &b.DuplicateCustomers,
		&b.EmailsSent, &b.EmailsFailed, &b.EmailsPending, &b.Status, &b.CreatedAt, &b.UpdatedAt)
}

// Create inserts a new batch in processing state
func (r *BatchRepository) Create(ctx context.Context, b *models.UploadBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.Status = models.BatchProcessing
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_batches (id, user_id, location_id, location_name, business_name,
			file_name, file_type, file_size, source_key, total_rows, in_file_duplicates,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.LocationID, b.LocationName, b.BusinessName,
		b.FileName, b.FileType, b.FileSize, b.SourceKey, b.TotalRows, b.InFileDuplicates,
		b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload batch: %w", err)
	}
	return nil
}

// GetByID returns a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.UploadBatch, error) {
	b := &models.UploadBatch{}
	err := scanBatch(r.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM upload_batches WHERE id = ?", id), b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// List returns batches of a user, newest first
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.UploadBatch, int, error) {
	where := " WHERE user_id = ?"
	args := []any{filter.UserID}
	if filter.LocationID != "" {
		where += " AND location_id = ?"
		args = append(args, filter.LocationID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM upload_batches"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + batchColumns + " FROM upload_batches" + where + " ORDER BY created_at DESC"
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

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	batches := []models.UploadBatch{}
	for rows.Next() {
		var b models.UploadBatch
		if err := scanBatch(rows, &b); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}

	return batches, total, rows.Err()
}

// Finalize records ingestion results and moves the batch to analyzed
func (r *BatchRepository) Finalize(ctx context.Context, id string, valid, duplicates int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE upload_batches SET valid_customers = ?, duplicate_customers = ?,
			emails_sent = 0, emails_failed = 0, emails_pending = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		valid, duplicates, valid, models.BatchAnalyzed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize upload batch: %w", err)
	}
	return nil
}

// RefreshCounts recomputes the email counters of a batch from its customer
// rows. Claimed rows count as pending.
func (r *BatchRepository) RefreshCounts(ctx context.Context, id string) (models.BatchCounts, error) {
	var counts models.BatchCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN email_status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN email_status IN ('pending', 'sending') THEN 1 ELSE 0 END), 0)
		FROM customers WHERE batch_id = ?`, id,
	).Scan(&counts.Sent, &counts.Failed, &counts.Pending)
	if err != nil {
		return counts, fmt.Errorf("failed to count batch customers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE upload_batches SET emails_sent = ?, emails_failed = ?, emails_pending = ?,
			valid_customers = ?, updated_at = ?
		WHERE id = ?`,
		counts.Sent, counts.Failed, counts.Pending, counts.Sent+counts.Failed+counts.Pending, time.Now().UTC(), id,
	)
	if err != nil {
		return counts, fmt.Errorf("failed to update batch counters: %w", err)
	}
	return counts, nil
}

// UpdateStatus sets the lifecycle status of a batch
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE upload_batches SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	return err
}

// Delete removes a batch; its customers are removed by cascade
func (r *BatchRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM upload_batches WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete upload batch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByLocation removes every batch of a location
func (r *BatchRepository) DeleteByLocation(ctx context.Context, userID, locationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM upload_batches WHERE user_id = ? AND location_id = ?", userID, locationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete upload batches: %w", err)
	}
	return res.RowsAffected()
}
