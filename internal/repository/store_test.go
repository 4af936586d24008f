package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStore_Ingest_BatchCreateFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("INSERT INTO upload_batches").WillReturnError(errors.New("disk I/O error"))

	store := NewStore(sqlDB)
	res, err := store.Ingest(context.Background(), testMeta("loc-1", 1), parsedCustomers("a@example.com"))
	if err == nil {
		t.Fatal("Ingest() expected error")
	}
	if res != nil {
		t.Errorf("Ingest() result = %+v, want nil", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Ingest_CustomerInsertFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("INSERT INTO upload_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT email FROM customers").
		WithArgs("user-1", "loc-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO customers").
		ExpectExec().
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	store := NewStore(sqlDB)
	res, err := store.Ingest(context.Background(), testMeta("loc-1", 1), parsedCustomers("a@example.com"))
	if err == nil {
		t.Fatal("Ingest() expected error")
	}
	if res == nil || res.BatchID == "" {
		t.Fatalf("Ingest() should report the batch left in processing, got %+v", res)
	}
	// No finalize statement may run after the failed insert
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Ingest_AllDuplicates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("INSERT INTO upload_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT email FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@example.com"))
	mock.ExpectExec("UPDATE upload_batches SET valid_customers").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(sqlDB)
	res, err := store.Ingest(context.Background(), testMeta("loc-1", 1), parsedCustomers("a@example.com"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.NewCustomers != 0 || res.Duplicates != 1 {
		t.Errorf("Ingest() = %+v, want 0 valid and 1 duplicate", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
