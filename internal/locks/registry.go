package locks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"triage/internal/logging"
	"triage/internal/review"
)

// Service is the remote lock API the registry consumes.
type Service interface {
	ListLocks(ctx context.Context) ([]review.Lock, error)
	ReleaseLock(ctx context.Context, itemID string) error
}

// Registry materializes "locks held by the current user" as a local
// snapshot. The server stays authoritative; the registry only caches
// the last fetch and must be refreshed after any operation that could
// have changed ownership.
type Registry struct {
	svc    Service
	logger *slog.Logger

	mu        sync.RWMutex
	snapshot  []review.Lock
	fetchedAt time.Time
}

// NewRegistry constructs a lock registry over the given service.
func NewRegistry(svc Service, logger *slog.Logger) *Registry {
	return &Registry{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "locks"),
	}
}

// Refresh fetches the caller's locks and swaps the snapshot in one
// write. Readers holding a previous snapshot keep a consistent view.
// A refresh that started before the currently-installed one is
// discarded so a slow fetch never rolls the snapshot back.
func (r *Registry) Refresh(ctx context.Context) error {
	started := time.Now()
	fetched, err := r.svc.ListLocks(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.fetchedAt.After(started) {
		r.mu.Unlock()
		return nil
	}
	r.snapshot = fetched
	r.fetchedAt = started
	r.mu.Unlock()

	r.logger.Debug("lock snapshot refreshed", logging.Int("locks", len(fetched)))
	return nil
}

// Snapshot returns a copy of the last-fetched lock set.
func (r *Registry) Snapshot() []review.Lock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]review.Lock, len(r.snapshot))
	copy(cp, r.snapshot)
	return cp
}

// LastRefreshed reports when the snapshot was last fetched. The zero
// time means the registry has never been refreshed.
func (r *Registry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// HeldLock returns the user's active lock, if any. The server enforces
// at most one lock per reviewer; if the snapshot disagrees, the first
// entry wins and the discrepancy is logged.
func (r *Registry) HeldLock() (review.Lock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.snapshot) == 0 {
		return review.Lock{}, false
	}
	if len(r.snapshot) > 1 {
		r.logger.Warn("snapshot holds multiple locks for one reviewer",
			logging.Int("locks", len(r.snapshot)),
			logging.String(logging.FieldErrorHint, "server should enforce single-lock invariant"),
		)
	}
	return r.snapshot[0], true
}

// LockFor returns the user's lock on a specific item, if present.
func (r *Registry) LockFor(itemID string) (review.Lock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lock := range r.snapshot {
		if lock.ItemID == itemID {
			return lock, true
		}
	}
	return review.Lock{}, false
}

// Release drops the lock on an item and refreshes the snapshot.
// Releasing an already-unlocked item is a no-op.
func (r *Registry) Release(ctx context.Context, itemID string) error {
	if err := r.svc.ReleaseLock(ctx, itemID); err != nil {
		return err
	}
	return r.Refresh(ctx)
}
