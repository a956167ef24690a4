package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"triage/internal/config"
)

// Store persists per-screen preferences in SQLite under the state
// directory. Opening the store also claims the state directory with a
// file lock so two long-running console processes do not compete over
// it.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS screen_prefs (
	screen TEXT PRIMARY KEY,
	auto_refresh INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL
);
`

// Open initializes or connects to the preference database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.StateDir, "triage.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state directory %s is in use by another triage process", cfg.Paths.StateDir)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "prefs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("init prefs schema: %w", err)
	}

	return &Store{db: db, lock: lock, path: dbPath}, nil
}

// Close releases the database and the state-directory lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.db != nil {
		firstErr = s.db.Close()
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AutoRefreshEnabled reports whether auto-refresh is on for a screen.
// Screens with no stored preference default to enabled.
func (s *Store) AutoRefreshEnabled(ctx context.Context, screen string) (bool, error) {
	screen = strings.TrimSpace(screen)
	if screen == "" {
		return false, fmt.Errorf("screen name is required")
	}

	var enabled int
	err := s.queryRowWithRetry(ctx,
		`SELECT auto_refresh FROM screen_prefs WHERE screen = ?`,
		func(row *sql.Row) error { return row.Scan(&enabled) },
		screen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read auto_refresh for %s: %w", screen, err)
	}
	return enabled != 0, nil
}

// SetAutoRefresh stores the auto-refresh toggle for a screen.
func (s *Store) SetAutoRefresh(ctx context.Context, screen string, enabled bool) error {
	screen = strings.TrimSpace(screen)
	if screen == "" {
		return fmt.Errorf("screen name is required")
	}

	value := 0
	if enabled {
		value = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	err := s.execWithRetry(ctx, `
INSERT INTO screen_prefs (screen, auto_refresh, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(screen) DO UPDATE SET auto_refresh = excluded.auto_refresh, updated_at = excluded.updated_at`,
		screen, value, now,
	)
	if err != nil {
		return fmt.Errorf("store auto_refresh for %s: %w", screen, err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, backing off and retrying while the database
// reports SQLITE_BUSY. Any other outcome is returned as is.
func (s *Store) withBusyRetry(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// queryRowWithRetry scans a single row via scan so a busy database is
// retried. Scan errors other than SQLITE_BUSY, sql.ErrNoRows
// included, come back after the first attempt.
func (s *Store) queryRowWithRetry(ctx context.Context, query string, scan func(*sql.Row) error, args ...any) error {
	return s.withBusyRetry(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, query, args...))
	})
}
