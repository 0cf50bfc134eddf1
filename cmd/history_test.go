package cmd

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func useMockHistoryDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	orig := openHistoryDB
	openHistoryDB = func(string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() {
		openHistoryDB = orig
		_ = db.Close()
	})
	t.Setenv("DATABASE_URL", "postgres://shelf@localhost/shelf")
	return mock
}

func TestHistoryExportJSONToStdout(t *testing.T) {
	mock := useMockHistoryDB(t)

	created := time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)
	columns := []string{"id", "session_id", "image_url", "detected_books", "identified_by", "augmented", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_history WHERE session_id = $1 ORDER BY created_at DESC")).
		WithArgs("device-a").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("scan-1", "device-a", "https://example.com/1.jpg", []byte(`[{"title":"Emma","author":"Jane Austen"}]`), "primary", true, created))

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"history", "export", "--device", "device-a", "--format", "json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(out.Bytes(), &records); err != nil {
		t.Fatalf("stdout is not a JSON document: %v\n%s", err, out.String())
	}
	if len(records) != 1 || records[0]["id"] != "scan-1" {
		t.Errorf("unexpected export %v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHistoryExportRejectsFormatBeforeWriting(t *testing.T) {
	opened := false
	orig := openHistoryDB
	openHistoryDB = func(string) (*sql.DB, error) {
		opened = true
		return nil, sql.ErrConnDone
	}
	t.Cleanup(func() { openHistoryDB = orig })
	t.Setenv("DATABASE_URL", "postgres://shelf@localhost/shelf")

	output := filepath.Join(t.TempDir(), "scans.out")
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"history", "export", "--device", "device-a", "--format", "xml", "-o", output})
	if err := root.Execute(); err == nil {
		t.Fatal("Expected an unsupported format error")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("Expected %s not to be created, stat err = %v", output, err)
	}
	if opened {
		t.Error("Expected no database connection for an invalid format")
	}
}
