package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks failures where the queue or item no longer
	// exists, or is no longer active.
	ErrNotFound = errors.New("not found")
	// ErrLockConflict marks failures where an item is already locked by
	// another owner.
	ErrLockConflict = errors.New("lock conflict")
	// ErrPermissionDenied marks local pre-flight rejections and
	// server-side authorization failures.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation marks requests rejected before any network call,
	// such as labels outside a queue's allowed set.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks retryable failures: network errors, timeouts,
	// and server 5xx responses.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while
// tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy name for an error, or "unknown" when the
// error carries no marker.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLockConflict):
		return "lock_conflict"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may retry the same action
// without changing anything first. Unmarked errors are treated as
// retryable so uncertain outcomes are never presented as final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrLockConflict),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrValidation):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
