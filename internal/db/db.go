package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite handle shared by all repositories
type DB struct {
	*sql.DB
}

// New opens the SQLite database at path, creating its directory if needed
func New(path string) (*DB, error) {
	// Ensure directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// Migrations returns the schema statements in apply order
func Migrations() []string {
	return []string{
		migrationUploadBatches,
		migrationCustomers,
	}
}

// Migrate applies the schema. Statements are idempotent.
func (db *DB) Migrate() error {
	for _, m := range Migrations() {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationUploadBatches = `
CREATE TABLE IF NOT EXISTS upload_batches (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    location_id TEXT NOT NULL,
    location_name TEXT,
    business_name TEXT,
    file_name TEXT NOT NULL,
    file_type TEXT,
    file_size INTEGER DEFAULT 0,
    source_key TEXT,
    total_rows INTEGER DEFAULT 0,
    valid_customers INTEGER DEFAULT 0,
    in_file_duplicates INTEGER DEFAULT 0,
    duplicate_customers INTEGER DEFAULT 0,
    emails_sent INTEGER DEFAULT 0,
    emails_failed INTEGER DEFAULT 0,
    emails_pending INTEGER DEFAULT 0,
    status TEXT DEFAULT 'processing',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_upload_batches_location ON upload_batches(user_id, location_id);
`

const migrationCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    location_id TEXT NOT NULL,
    location_name TEXT,
    business_name TEXT,
    batch_id TEXT REFERENCES upload_batches(id) ON DELETE CASCADE,
    row_number INTEGER DEFAULT 0,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    phone TEXT,
    review_link TEXT,
    email_status TEXT DEFAULT 'pending',
    email_sent_at TIMESTAMP,
    email_opened_at TIMESTAMP,
    email_clicked_at TIMESTAMP,
    claimed_at TIMESTAMP,
    message_id TEXT,
    sent_from TEXT,
    last_error TEXT,
    request_count INTEGER DEFAULT 0,
    last_request_sent_at TIMESTAMP,
    has_reviewed INTEGER DEFAULT 0,
    review_date TIMESTAMP,
    review_rating INTEGER,
    review_text TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, location_id, email)
);
CREATE INDEX IF NOT EXISTS idx_customers_location ON customers(user_id, location_id);
CREATE INDEX IF NOT EXISTS idx_customers_batch ON customers(batch_id);
CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(email_status);
`
