package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

const schemaLockID int64 = 2026101801

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var scanColumns = []string{"id", "session_id", "image_url", "detected_books", "identified_by", "augmented", "created_at"}

// PostgresStore keeps sessions and scans in Postgres
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenDB opens and pings a pgx-backed database handle
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS device_sessions (
	session_id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_history (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES device_sessions(session_id),
	image_url TEXT NOT NULL,
	detected_books JSONB NOT NULL DEFAULT '[]'::jsonb,
	identified_by TEXT NOT NULL,
	augmented BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_history_session_created ON scan_history(session_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDevice(ctx context.Context) (*models.DeviceSession, error) {
	session := models.DeviceSession{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
	}

	query, args, err := psql.Insert("device_sessions").
		Columns("session_id", "created_at").
		Values(session.ID, session.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build device insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert device session: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_sessions WHERE session_id = $1)`, deviceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query device session: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Append(ctx context.Context, record models.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	books := record.Books
	if books == nil {
		books = []models.Book{}
	}
	booksJSON, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("marshal books: %w", err)
	}

	query, args, err := psql.Insert("scan_history").
		Columns(scanColumns...).
		Values(record.ID, record.DeviceID, record.ImageURL, booksJSON, record.IdentifiedBy, record.Augmented, record.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build scan insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, deviceID string, limit int) ([]models.ScanRecord, error) {
	query, args, err := psql.Select(scanColumns...).
		From("scan_history").
		Where(sq.Eq{"session_id": deviceID}).
		OrderBy("created_at DESC").
		Limit(uint64(ClampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	records := []models.ScanRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Get(ctx context.Context, deviceID, scanID string) (*models.ScanRecord, error) {
	query, args, err := psql.Select(scanColumns...).
		From("scan_history").
		Where(sq.Eq{"id": scanID, "session_id": deviceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan get: %w", err)
	}

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ScanRecord, error) {
	var record models.ScanRecord
	var booksRaw []byte
	err := row.Scan(
		&record.ID, &record.DeviceID, &record.ImageURL, &booksRaw,
		&record.IdentifiedBy, &record.Augmented, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	if err := json.Unmarshal(booksRaw, &record.Books); err != nil {
		return nil, fmt.Errorf("unmarshal books: %w", err)
	}
	if record.Books == nil {
		record.Books = []models.Book{}
	}
	return &record, nil
}
