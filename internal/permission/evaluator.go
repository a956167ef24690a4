package permission

import (
	"fmt"

	"triage/internal/identity"
	"triage/internal/review"
)

// DenialCode classifies why a check failed, so callers can pick a
// recovery path without parsing the human-readable reason.
type DenialCode string

const (
	CodeNone        DenialCode = ""
	CodeEmptyQueue  DenialCode = "empty_queue"
	CodeNotAssignee DenialCode = "not_assignee"
	CodeLockHeld    DenialCode = "lock_held"
	CodeItemGone    DenialCode = "item_gone"
	CodeItemOnHold  DenialCode = "item_on_hold"
)

// Decision is the outcome of a permission check. Reason is a
// human-readable explanation surfaced verbatim to the UI when Allowed
// is false.
type Decision struct {
	Allowed bool
	Code    DenialCode
	Reason  string

	// HeldLock is set for CodeLockHeld so the caller can direct the
	// reviewer to the item they already have.
	HeldLock *review.Lock
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code DenialCode, format string, args ...any) Decision {
	return Decision{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CanStartQueueReview decides whether user may start reviewing from a
// queue, given the locks they currently hold. Denial reasons are
// checked in priority order: an empty queue first, then assignment,
// then the single-active-lock invariant. The lock denial names the
// already-held item so the UI can offer a redirect instead of a dead
// end.
func CanStartQueueReview(queue review.Queue, user identity.User, held []review.Lock) Decision {
	if queue.Size == 0 {
		return deny(CodeEmptyQueue, "queue %q has no remaining items", queue.Name)
	}
	if !queue.IsAssignee(user.ID) && !user.IsAdmin() {
		return deny(CodeNotAssignee, "you are not assigned to queue %q", queue.Name)
	}
	if len(held) > 0 {
		lock := held[0]
		decision := deny(CodeLockHeld, "you already hold a lock on item %s in queue %s; go to that item or release it first", lock.ItemID, lock.QueueID)
		decision.HeldLock = &lock
		return decision
	}
	return allow()
}

// CanReviewItem decides whether user may review a specific item. An
// item locked by the caller is always reviewable, as is an unlocked
// active item. Items locked by someone else are not rejected here:
// the local cache may be stale, so that case is left to the server,
// which reports an authoritative conflict at request time.
func CanReviewItem(item review.WorkItem, userID string) Decision {
	if !item.Active {
		return deny(CodeItemGone, "item %s is no longer available", item.ID)
	}
	if item.OnHold() && item.LockedByOther(userID) {
		return deny(CodeItemOnHold, "item %s is on hold by %s", item.ID, item.LockedBy)
	}
	return allow()
}
