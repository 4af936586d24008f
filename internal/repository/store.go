package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/reviewflow/internal/models"
)

// Store groups the batch and customer repositories and owns operations
// spanning both tables.
type Store struct {
	Batches   *BatchRepository
	Customers *CustomerRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Batches:   NewBatchRepository(db),
		Customers: NewCustomerRepository(db),
	}
}

// IngestResult reports what an ingest stored
type IngestResult struct {
	BatchID          string `json:"batch_id"`
	TotalRows        int    `json:"total_rows"`
	NewCustomers     int    `json:"new_customers"`
	InFileDuplicates int    `json:"in_file_duplicates"`
	Duplicates       int    `json:"duplicates"`
}

// Ingest records an upload batch and stores its customers. Customers whose
// email already exists for the location are counted as duplicates and not
// inserted. When the customer insert fails the batch is left in processing
// state and the error is returned together with the batch ID.
func (s *Store) Ingest(ctx context.Context, meta models.BatchMeta, parsed []models.ParsedCustomer) (*IngestResult, error) {
	batch := &models.UploadBatch{
		ID:               meta.BatchID,
		UserID:           meta.UserID,
		LocationID:       meta.LocationID,
		LocationName:     meta.LocationName,
		BusinessName:     meta.BusinessName,
		FileName:         meta.FileName,
		FileType:         meta.FileType,
		FileSize:         meta.FileSize,
		SourceKey:        meta.SourceKey,
		TotalRows:        meta.TotalRows,
		InFileDuplicates: meta.InFileDups,
	}
	if err := s.Batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	result := &IngestResult{
		BatchID:          batch.ID,
		TotalRows:        meta.TotalRows,
		InFileDuplicates: meta.InFileDups,
	}

	existing, err := s.Customers.ExistingEmails(ctx, meta.UserID, meta.LocationID)
	if err != nil {
		return result, err
	}

	fresh := make([]*models.Customer, 0, len(parsed))
	for _, p := range parsed {
		if _, ok := existing[p.Email]; ok {
			result.Duplicates++
			continue
		}
		existing[p.Email] = struct{}{}
		fresh = append(fresh, &models.Customer{
			UserID:       meta.UserID,
			LocationID:   meta.LocationID,
			LocationName: meta.LocationName,
			BusinessName: meta.BusinessName,
			BatchID:      batch.ID,
			RowNumber:    p.RowNumber,
			Name:         p.Name,
			Email:        p.Email,
			Phone:        p.Phone,
		})
	}

	if len(fresh) > 0 {
		inserted, err := s.Customers.InsertMany(ctx, fresh)
		if err != nil {
			return result, fmt.Errorf("batch %s: %w", batch.ID, err)
		}
		// A concurrent ingest may have stored some of the same emails.
		result.Duplicates += len(fresh) - inserted
		result.NewCustomers = inserted
	}

	if err := s.Batches.Finalize(ctx, batch.ID, result.NewCustomers, result.Duplicates); err != nil {
		return result, err
	}
	return result, nil
}

// DeleteCustomer removes a customer and refreshes its batch counters
func (s *Store) DeleteCustomer(ctx context.Context, id string) (bool, error) {
	c, err := s.Customers.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	deleted, err := s.Customers.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if c.BatchID != "" {
		if _, err := s.Batches.RefreshCounts(ctx, c.BatchID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// DeleteLocation removes all batches and customers of a location and
// returns the number of customers removed.
func (s *Store) DeleteLocation(ctx context.Context, userID, locationID string) (int64, error) {
	n, err := s.Customers.DeleteByLocation(ctx, userID, locationID)
	if err != nil {
		return 0, err
	}
	if _, err := s.Batches.DeleteByLocation(ctx, userID, locationID); err != nil {
		return n, err
	}
	return n, nil
}

// ReleaseStaleClaims resets abandoned sending rows and refreshes the
// counters of the affected batches.
func (s *Store) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	batchIDs, err := s.Customers.BatchIDsWithStatus(ctx, models.EmailSending)
	if err != nil {
		return 0, err
	}
	n, err := s.Customers.ReleaseStaleClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range batchIDs {
		if _, err := s.Batches.RefreshCounts(ctx, id); err != nil {
			return n, err
		}
	}
	return n, nil
}
