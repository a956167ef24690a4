package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"triage/internal/services"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "backend", "GET /api/locks", "request failed", cause)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("wrapped error should match its marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error should match its cause")
	}
	if errors.Is(err, services.ErrNotFound) {
		t.Fatal("wrapped error should not match a different marker")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrNotFound, "backend", "op", "gone", nil), "not_found"},
		{services.Wrap(services.ErrLockConflict, "backend", "op", "taken", nil), "lock_conflict"},
		{services.Wrap(services.ErrPermissionDenied, "backend", "op", "no", nil), "permission_denied"},
		{services.Wrap(services.ErrValidation, "backend", "op", "bad", nil), "validation"},
		{services.Wrap(services.ErrTransient, "backend", "op", "flaky", nil), "transient"},
		{errors.New("plain"), "unknown"},
	}
	for _, tc := range tests {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrValidation, "c", "op", "bad input", nil)) {
		t.Fatal("validation errors are not retryable")
	}
	if services.Retryable(services.Wrap(services.ErrPermissionDenied, "c", "op", "denied", nil)) {
		t.Fatal("permission errors are not retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrTransient, "c", "op", "flaky", nil)) {
		t.Fatal("transient errors are retryable")
	}
	// Unmarked failures default to retryable so an unknown outcome is
	// re-checked rather than silently dropped.
	if !services.Retryable(fmt.Errorf("socket closed")) {
		t.Fatal("unclassified errors default to retryable")
	}
}

func TestWrapMessageNamesComponentAndOperation(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "directory", "refresh_one", "queue gone", nil)
	msg := err.Error()
	for _, want := range []string{"directory", "refresh_one", "queue gone"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}
