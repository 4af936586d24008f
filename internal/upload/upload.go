// Package upload turns an uploaded customer file into a stored batch
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foxzi/reviewflow/internal/archive"
	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/models"
	"github.com/foxzi/reviewflow/internal/normalizer"
	"github.com/foxzi/reviewflow/internal/repository"
	"github.com/google/uuid"
)

var (
	// ErrNoValidRows is returned when a file has no row with a valid email
	ErrNoValidRows = errors.New("file contains no rows with a valid email")
	// ErrFileTooLarge is returned when a file exceeds the configured limit
	ErrFileTooLarge = errors.New("file is too large")
)

// File is an uploaded customer file
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Meta identifies where an upload belongs
type Meta struct {
	UserID       string `json:"user_id"`
	LocationID   string `json:"location_id"`
	LocationName string `json:"location_name"`
	BusinessName string `json:"business_name"`
}

// Result summarises an upload
type Result struct {
	repository.IngestResult
	ValidRows   int      `json:"valid_rows"`
	SourceKey   string   `json:"source_key,omitempty"`
	ParseErrors []string `json:"parse_errors,omitempty"`
}

// Ingester stores parsed customers
type Ingester interface {
	Ingest(ctx context.Context, meta models.BatchMeta, parsed []models.ParsedCustomer) (*repository.IngestResult, error)
}

// Service parses, archives and stores customer files
type Service struct {
	store    Ingester
	archiver archive.Archiver
	maxSize  int64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates an upload service. archiver and m may be nil;
// maxSize <= 0 disables the size check.
func NewService(store Ingester, archiver archive.Archiver, maxSize int64, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		archiver: archiver,
		maxSize:  maxSize,
		metrics:  m,
		logger:   logger.With("component", "upload"),
	}
}

// Upload parses f and stores the resulting customers as a new batch.
// Input errors leave no state behind.
func (s *Service) Upload(ctx context.Context, f File, meta Meta) (*Result, error) {
	if meta.UserID == "" || meta.LocationID == "" {
		return nil, fmt.Errorf("user_id and location_id are required")
	}
	if s.maxSize > 0 && int64(len(f.Data)) > s.maxSize {
		s.metrics.ObserveUpload("rejected", 0, 0, 0, 0)
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(f.Data), s.maxSize)
	}

	parsed, err := normalizer.Parse(f.Data, f.Name, f.MIMEType)
	if err != nil {
		s.metrics.ObserveUpload("rejected", 0, 0, 0, 0)
		return nil, err
	}
	rejected := parsed.TotalRows - parsed.ValidRows - parsed.InFileDuplicates
	if parsed.ValidRows == 0 {
		s.metrics.ObserveUpload("rejected", 0, parsed.InFileDuplicates, 0, rejected)
		return nil, fmt.Errorf("%w (%d rows read)", ErrNoValidRows, parsed.TotalRows)
	}

	batchMeta := models.BatchMeta{
		BatchID:      uuid.New().String(),
		UserID:       meta.UserID,
		LocationID:   meta.LocationID,
		LocationName: meta.LocationName,
		BusinessName: meta.BusinessName,
		FileName:     f.Name,
		FileType:     f.MIMEType,
		FileSize:     int64(len(f.Data)),
		TotalRows:    parsed.TotalRows,
		InFileDups:   parsed.InFileDuplicates,
	}

	if s.archiver != nil {
		key, err := s.archiver.Put(ctx, archive.Object{
			UserID:      meta.UserID,
			BatchID:     batchMeta.BatchID,
			FileName:    f.Name,
			ContentType: f.MIMEType,
			Data:        f.Data,
		})
		if err != nil {
			// The batch is still usable without the archived copy
			s.logger.Warn("failed to archive upload", "batch_id", batchMeta.BatchID, "error", err)
		}
		batchMeta.SourceKey = key
	}

	ingested, err := s.store.Ingest(ctx, batchMeta, parsed.Customers)
	if err != nil {
		s.metrics.ObserveUpload("failed", 0, 0, 0, 0)
		s.logger.Error("failed to store upload", "batch_id", batchMeta.BatchID, "error", err)
		return nil, err
	}

	s.metrics.ObserveUpload("ok", ingested.NewCustomers, parsed.InFileDuplicates, ingested.Duplicates, rejected)
	s.logger.Info("customer file ingested",
		"batch_id", ingested.BatchID,
		"user_id", meta.UserID,
		"location_id", meta.LocationID,
		"file", f.Name,
		"total_rows", parsed.TotalRows,
		"new_customers", ingested.NewCustomers,
		"duplicates", ingested.Duplicates,
		"in_file_duplicates", parsed.InFileDuplicates,
	)

	return &Result{
		IngestResult: *ingested,
		ValidRows:    parsed.ValidRows,
		SourceKey:    batchMeta.SourceKey,
		ParseErrors:  parsed.ParseErrors,
	}, nil
}
