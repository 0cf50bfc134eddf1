package ratelimit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryAllow(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "scan:a", 5, time.Hour)
		if err != nil || !ok {
			t.Fatalf("Scan %d: expected allowed, got %v %v", i+1, ok, err)
		}
	}
	if ok, _ := m.Allow(ctx, "scan:a", 5, time.Hour); ok {
		t.Error("Expected sixth scan in the window to be denied")
	}

	if ok, _ := m.Allow(ctx, "scan:b", 5, time.Hour); !ok {
		t.Error("Expected another key to have its own quota")
	}

	now = now.Add(59 * time.Minute)
	if ok, _ := m.Allow(ctx, "scan:a", 5, time.Hour); ok {
		t.Error("Expected the window to stay closed until it expires")
	}

	now = now.Add(time.Minute)
	for i := 0; i < 5; i++ {
		if ok, _ := m.Allow(ctx, "scan:a", 5, time.Hour); !ok {
			t.Fatalf("Scan %d: expected a fresh quota once the window expired", i+1)
		}
	}
}

func TestMemoryQuotaHoldsForSpacedScans(t *testing.T) {
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	now := start
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	// a device retrying every minute must not beat the hourly quota
	allowed := 0
	for minute := 0; minute < 60; minute++ {
		now = start.Add(time.Duration(minute) * time.Minute)
		for i := 0; i < 5; i++ {
			ok, err := m.Allow(ctx, "scan:dev", 5, time.Hour)
			if err != nil {
				t.Fatalf("Allow error = %v", err)
			}
			if ok {
				allowed++
			}
		}
	}
	if allowed != 5 {
		t.Errorf("Expected 5 scans allowed in one hour, got %d", allowed)
	}

	// one scan every 13 minutes is still capped once the window opens
	m = NewMemory()
	m.now = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		now = start.Add(time.Duration(i) * 13 * time.Minute)
		_, _ = m.Allow(ctx, "scan:dev", 5, time.Hour)
	}
	now = start.Add(59 * time.Minute)
	if ok, _ := m.Allow(ctx, "scan:dev", 5, time.Hour); ok {
		t.Error("Expected a sixth scan 59 minutes after the first to be denied")
	}
}

func TestMemoryRejectsInvalidLimit(t *testing.T) {
	m := NewMemory()
	if ok, _ := m.Allow(context.Background(), "k", 0, time.Hour); ok {
		t.Error("Expected zero limit to deny")
	}
}

func TestMemorySweepsIdleKeys(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	m.sweepAt = 2
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old-1", 5, time.Minute)
	_, _ = m.Allow(ctx, "old-2", 5, time.Minute)
	now = now.Add(time.Hour)
	_, _ = m.Allow(ctx, "new", 5, time.Minute)

	if len(m.entries) != 1 {
		t.Errorf("Expected idle keys to be swept, have %d entries", len(m.entries))
	}
}

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	p := NewPostgres(db)
	p.now = func() time.Time { return time.Date(2026, 10, 18, 12, 34, 56, 0, time.UTC) }
	return p, mock, func() { _ = db.Close() }
}

func TestPostgresAllow(t *testing.T) {
	tests := []struct {
		name string
		hits int
		want bool
	}{
		{name: "first hit", hits: 1, want: true},
		{name: "at limit", hits: 5, want: true},
		{name: "over limit", hits: 6, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock, done := newPostgresWithMock(t)
			defer done()

			windowStart := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO scan_rate_limits (key,window_start,hits) VALUES ($1,$2,$3) ON CONFLICT (key, window_start) DO UPDATE SET hits = scan_rate_limits.hits + 1 RETURNING hits")).
				WithArgs("scan:a", windowStart, 1).
				WillReturnRows(sqlmock.NewRows([]string{"hits"}).AddRow(tt.hits))

			ok, err := p.Allow(context.Background(), "scan:a", 5, time.Hour)
			if err != nil {
				t.Fatalf("Allow error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, ok)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestPostgresAllowError(t *testing.T) {
	p, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectQuery("INSERT INTO scan_rate_limits").WillReturnError(errors.New("connection refused"))

	ok, err := p.Allow(context.Background(), "scan:a", 5, time.Hour)
	if err == nil {
		t.Fatal("Expected error")
	}
	if ok {
		t.Error("Expected denial on error")
	}
}

func TestPostgresPrune(t *testing.T) {
	p, mock, done := newPostgresWithMock(t)
	defer done()

	cutoff := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scan_rate_limits WHERE window_start < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.Prune(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Prune error = %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows pruned, got %d", n)
	}
}
