package models

import "time"

// BatchStatus is the lifecycle state of an upload batch
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchAnalyzed   BatchStatus = "analyzed"
	BatchSending    BatchStatus = "sending"
	BatchCompleted  BatchStatus = "completed"
)

// UploadBatch represents one uploaded customer file
type UploadBatch struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	LocationID         string      `json:"location_id"`
	LocationName       string      `json:"location_name"`
	BusinessName       string      `json:"business_name"`
	FileName           string      `json:"file_name"`
	FileType           string      `json:"file_type"`
	FileSize           int64       `json:"file_size"`
	SourceKey          string      `json:"source_key,omitempty"`
	TotalRows          int         `json:"total_rows"`
	ValidCustomers     int         `json:"valid_customers"`
	InFileDuplicates   int         `json:"in_file_duplicates"`
	DuplicateCustomers int         `json:"duplicate_customers"`
	EmailsSent         int         `json:"emails_sent"`
	EmailsFailed       int         `json:"emails_failed"`
	EmailsPending      int         `json:"emails_pending"`
	Status             BatchStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// BatchMeta describes an upload before it is stored
type BatchMeta struct {
	// BatchID is optional; a new ID is generated when empty
	BatchID      string
	UserID       string
	LocationID   string
	LocationName string
	BusinessName string
	FileName     string
	FileType     string
	FileSize     int64
	SourceKey    string
	TotalRows    int
	InFileDups   int
}

// BatchFilter for listing batches
type BatchFilter struct {
	UserID     string
	LocationID string
	Limit      int
	Offset     int
}

// BatchCounts holds email counters derived from a batch's customer rows
type BatchCounts struct {
	Sent    int
	Failed  int
	Pending int
}
