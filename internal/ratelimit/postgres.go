package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const schemaLockID int64 = 2026101802

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres is a fixed-window counter shared by every process using the
// database. The upsert makes check-and-increment a single statement.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
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
CREATE TABLE IF NOT EXISTS scan_rate_limits (
	key TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	hits INTEGER NOT NULL,
	PRIMARY KEY (key, window_start)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (p *Postgres) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}
	windowStart := p.now().UTC().Truncate(window)

	query, args, err := psql.Insert("scan_rate_limits").
		Columns("key", "window_start", "hits").
		Values(key, windowStart, 1).
		Suffix("ON CONFLICT (key, window_start) DO UPDATE SET hits = scan_rate_limits.hits + 1 RETURNING hits").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build rate limit upsert: %w", err)
	}

	var hits int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&hits); err != nil {
		return false, fmt.Errorf("increment rate limit: %w", err)
	}
	return hits <= limit, nil
}

// Prune deletes windows that ended before cutoff
func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("scan_rate_limits").
		Where(sq.Lt{"window_start": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build rate limit prune: %w", err)
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
