package history

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	store := NewPostgresStore(db)
	store.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return store, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(schemaLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS device_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateDevice(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_sessions (session_id,created_at) VALUES ($1,$2)")).
		WithArgs(sqlmock.AnyArg(), store.now().UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session, err := store.CreateDevice(context.Background())
	if err != nil {
		t.Fatalf("CreateDevice error = %v", err)
	}
	if session.ID == "" {
		t.Error("expected a session id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeviceExists(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM device_sessions WHERE session_id = $1)")).
		WithArgs("device-a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.DeviceExists(context.Background(), "device-a")
	if err != nil {
		t.Fatalf("DeviceExists error = %v", err)
	}
	if !exists {
		t.Error("expected device to exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendStoresBooksAsJSON(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	score := 95
	record := models.ScanRecord{
		ID:           "scan-1",
		DeviceID:     "device-a",
		ImageURL:     "https://example.com/a.jpg",
		Books:        []models.Book{{Title: "Dune", Author: "Frank Herbert", Reason: "Classic.", Score: &score}},
		IdentifiedBy: models.IdentifiedByPrimary,
		Augmented:    true,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan_history (id,session_id,image_url,detected_books,identified_by,augmented,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)")).
		WithArgs("scan-1", "device-a", "https://example.com/a.jpg",
			[]byte(`[{"title":"Dune","author":"Frank Herbert","reason":"Classic.","score":95}]`),
			"primary", true, store.now().UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Append(context.Background(), record); err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendEmptyBooks(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO scan_history").
		WithArgs(sqlmock.AnyArg(), "device-a", "u", []byte(`[]`), "fallback", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), models.ScanRecord{DeviceID: "device-a", ImageURL: "u", IdentifiedBy: "fallback"})
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestList(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	created := time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scanColumns).
		AddRow("scan-2", "device-a", "https://example.com/2.jpg", []byte(`[{"title":"Emma","author":"Jane Austen"}]`), "fallback", false, created).
		AddRow("scan-1", "device-a", "https://example.com/1.jpg", []byte(`[]`), "primary", false, created.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, image_url, detected_books, identified_by, augmented, created_at FROM scan_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT 20")).
		WithArgs("device-a").
		WillReturnRows(rows)

	records, err := store.List(context.Background(), "device-a", 0)
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "scan-2" || records[0].Books[0].Title != "Emma" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Books == nil || len(records[1].Books) != 0 {
		t.Errorf("expected empty non-nil books, got %#v", records[1].Books)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_history WHERE id = $1 AND session_id = $2")).
		WithArgs("scan-1", "device-b").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "device-b", "scan-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGet(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_history WHERE id = $1 AND session_id = $2")).
		WithArgs("scan-1", "device-a").
		WillReturnRows(sqlmock.NewRows(scanColumns).
			AddRow("scan-1", "device-a", "u", []byte(`[{"title":"Dune","author":"Frank Herbert","reason":"r","score":95}]`), "primary", true, time.Now()))

	record, err := store.Get(context.Background(), "device-a", "scan-1")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if !record.Augmented || record.Books[0].Score == nil || *record.Books[0].Score != 95 {
		t.Errorf("unexpected record: %+v", record)
	}
}
