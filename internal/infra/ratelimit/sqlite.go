package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"audio-blinkshot/internal/infra"
)

// SQLiteStore keeps hit logs in a SQLite database so budgets survive restarts
// and can be shared by several server processes on one host.
type SQLiteStore struct {
	db    *sql.DB
	retry infra.RetryConfig
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating limiter data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection serializes transactions inside this process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, retry: infra.DefaultRetryConfig()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating limiter schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS ratelimit_hits (
    identifier TEXT NOT NULL,
    hit_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ratelimit_hits_identifier ON ratelimit_hits(identifier, hit_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Take(ctx context.Context, id string, now time.Time, window time.Duration, limit int) (bool, error) {
	var allowed bool
	err := infra.WithRetry(ctx, s.retry, func() error {
		ok, err := s.take(ctx, id, now, window, limit)
		if err != nil {
			return retryable(err)
		}
		allowed = ok
		return nil
	})
	return allowed, err
}

func (s *SQLiteStore) take(ctx context.Context, id string, now time.Time, window time.Duration, limit int) (allowed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cutoff := now.Add(-window).UnixNano()
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM ratelimit_hits WHERE identifier = ? AND hit_at <= ?`, id, cutoff); err != nil {
		return false, fmt.Errorf("expiring hits: %w", err)
	}

	var count int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratelimit_hits WHERE identifier = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("counting hits: %w", err)
	}

	if count < limit {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO ratelimit_hits(identifier, hit_at) VALUES(?, ?)`, id, now.UnixNano()); err != nil {
			return false, fmt.Errorf("recording hit: %w", err)
		}
		allowed = true
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("committing tx: %w", err)
	}
	return allowed, nil
}

func (s *SQLiteStore) Count(ctx context.Context, id string, now time.Time, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratelimit_hits WHERE identifier = ? AND hit_at > ?`,
		id, now.Add(-window).UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting hits: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ratelimit_hits WHERE hit_at <= ?`, cutoff.UnixNano())
	return err
}

// retryable lets WithRetry try again only when another writer holds the lock.
func retryable(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return err
		}
	}
	return infra.Permanent(err)
}
