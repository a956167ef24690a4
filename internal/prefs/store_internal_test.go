package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"triage/internal/testsupport"
)

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "busy code", err: fmt.Errorf("SQLITE_BUSY (5)"), want: true},
		{name: "locked message", err: fmt.Errorf("database is locked"), want: true},
		{name: "unrelated", err: fmt.Errorf("no such table: screen_prefs"), want: false},
		{name: "no rows", err: sql.ErrNoRows, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.want {
				t.Fatalf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestQueryRowRetryReturnsNonBusyErrorsImmediately(t *testing.T) {
	store, err := Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	var enabled int
	start := time.Now()
	err = store.queryRowWithRetry(context.Background(),
		`SELECT auto_refresh FROM screen_prefs WHERE screen = ?`,
		func(row *sql.Row) error { return row.Scan(&enabled) },
		"no-such-screen",
	)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	// A busy-classified error would sleep through the whole backoff
	// ladder before giving up.
	if elapsed := time.Since(start); elapsed >= busyRetryMaxBackoff {
		t.Fatalf("missing row took %v, should not enter the busy backoff", elapsed)
	}
}
