package models

import "time"

// EmailStatus is the review-request email state of a customer
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	// EmailSending marks a row claimed by a dispatch run
	EmailSending EmailStatus = "sending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// Customer represents a single customer of a location
type Customer struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	LocationID        string      `json:"location_id"`
	LocationName      string      `json:"location_name"`
	BusinessName      string      `json:"business_name"`
	BatchID           string      `json:"batch_id"`
	RowNumber         int         `json:"row_number"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Phone             string      `json:"phone,omitempty"`
	ReviewLink        string      `json:"review_link,omitempty"`
	EmailStatus       EmailStatus `json:"email_status"`
	EmailSentAt       *time.Time  `json:"email_sent_at,omitempty"`
	EmailOpenedAt     *time.Time  `json:"email_opened_at,omitempty"`
	EmailClickedAt    *time.Time  `json:"email_clicked_at,omitempty"`
	ClaimedAt         *time.Time  `json:"claimed_at,omitempty"`
	MessageID         string      `json:"message_id,omitempty"`
	SentFrom          string      `json:"sent_from,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	RequestCount      int         `json:"request_count"`
	LastRequestSentAt *time.Time  `json:"last_request_sent_at,omitempty"`
	HasReviewed       bool        `json:"has_reviewed"`
	ReviewDate        *time.Time  `json:"review_date,omitempty"`
	ReviewRating      int         `json:"review_rating,omitempty"`
	ReviewText        string      `json:"review_text,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// ParsedCustomer is a validated row produced by the normalizer
type ParsedCustomer struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	RowNumber int    `json:"row_number"`
}

// CustomerFilter for listing customers of a location
type CustomerFilter struct {
	UserID     string
	LocationID string
	BatchID    string
	Status     EmailStatus
	Reviewed   *bool
	Search     string
	Limit      int
	Offset     int
}

// SendOutcome is written back to a customer after a send attempt
type SendOutcome struct {
	Status     EmailStatus
	ReviewLink string
	MessageID  string
	SentFrom   string
	Error      string
	At         time.Time
}

// ReviewMatch is written back to a customer when a review is attributed
type ReviewMatch struct {
	Date   time.Time
	Rating int
	Text   string
}
