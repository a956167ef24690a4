package backend

import (
	"fmt"

	"triage/internal/services"
)

// ConflictError reports that an item is already locked by another
// owner. It unwraps to services.ErrLockConflict so callers can use
// errors.Is, while keeping the conflicting owner and queue available
// for guided recovery.
type ConflictError struct {
	ItemID  string
	OwnerID string
	QueueID string
}

func (e *ConflictError) Error() string {
	if e.OwnerID == "" {
		return fmt.Sprintf("item %s is already locked", e.ItemID)
	}
	return fmt.Sprintf("item %s is already locked by %s on queue %s", e.ItemID, e.OwnerID, e.QueueID)
}

func (e *ConflictError) Unwrap() error {
	return services.ErrLockConflict
}
