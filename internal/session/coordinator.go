package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"triage/internal/directory"
	"triage/internal/identity"
	"triage/internal/locks"
	"triage/internal/logging"
	"triage/internal/permission"
	"triage/internal/review"
	"triage/internal/services"
	"triage/internal/services/backend"
)

// ErrSuperseded reports that a response arrived for a session the
// reviewer had already abandoned; the response was discarded.
var ErrSuperseded = errors.New("session superseded")

// Service is the remote item API the coordinator consumes. Claiming
// operations lock the returned item to the caller on the server.
type Service interface {
	NextReviewItem(ctx context.Context, queueID string) (*review.WorkItem, error)
	ClaimItem(ctx context.Context, itemID, queueID string) (*review.WorkItem, error)
	ApplyLabel(ctx context.Context, itemID string, label review.Label, notes string) error
}

// Conflict describes a lock held by someone else at request time.
type Conflict struct {
	ItemID  string
	OwnerID string
	QueueID string
}

// View is a consistent snapshot of the session for the UI.
type View struct {
	Phase     Phase
	SessionID string
	Queue     *review.Queue
	Item      *review.WorkItem
	Conflict  *Conflict
}

// Coordinator drives the per-item review state machine: request the
// next reviewable item, hold the lock, apply a decision, release.
// Every mutating operation is sequenced through the phase; no two
// mutating calls on the same session are in flight concurrently.
type Coordinator struct {
	svc      Service
	registry *locks.Registry
	dir      *directory.Directory
	user     identity.User
	logger   *slog.Logger

	batchConcurrency int

	mu        sync.Mutex
	phase     Phase
	epoch     uint64
	sessionID string
	queue     review.Queue
	item      *review.WorkItem
	conflict  *Conflict
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithBatchConcurrency bounds the fan-out of ApplyLabelBatch.
func WithBatchConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

// New constructs a session coordinator.
func New(svc Service, registry *locks.Registry, dir *directory.Directory, user identity.User, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:              svc,
		registry:         registry,
		dir:              dir,
		user:             user,
		logger:           logging.NewComponentLogger(logger, "session"),
		batchConcurrency: 4,
		phase:            PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current session view.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Coordinator) viewLocked() View {
	view := View{Phase: c.phase, SessionID: c.sessionID}
	if c.phase.Active() || c.phase == PhaseConflict {
		queue := c.queue
		view.Queue = &queue
	}
	if c.item != nil {
		item := *c.item
		view.Item = &item
	}
	if c.conflict != nil {
		conflict := *c.conflict
		view.Conflict = &conflict
	}
	return view
}

// Start begins a review session on a queue. With an empty itemID the
// server assigns the head of order; a non-empty itemID is a free pick,
// rejected up front on queues with locked sorting so the substitution
// policy stays visible instead of silently redirecting. Pre-flight
// permission failures never reach the network.
func (c *Coordinator) Start(ctx context.Context, queueID, itemID string) (View, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, services.Wrap(services.ErrValidation, "session", "start", "a session is already active in phase "+c.phase.String(), nil)
	}

	queue, ok := c.dir.QueueByID(queueID)
	if !ok {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, services.Wrap(services.ErrNotFound, "session", "start", "queue "+queueID+" is not in the cached directory", nil)
	}

	held := c.registry.Snapshot()
	resuming := itemID != "" && len(held) > 0 && held[0].ItemID == itemID
	if !resuming {
		if decision := permission.CanStartQueueReview(queue, c.user, held); !decision.Allowed {
			if decision.Code == permission.CodeLockHeld {
				// Never acquire a second lock. Surface the one already
				// held so the reviewer is directed to it.
				c.phase = PhaseConflict
				c.queue = queue
				c.conflict = &Conflict{
					ItemID:  decision.HeldLock.ItemID,
					OwnerID: decision.HeldLock.OwnerID,
					QueueID: decision.HeldLock.QueueID,
				}
				view := c.viewLocked()
				c.mu.Unlock()
				return view, services.Wrap(services.ErrLockConflict, "session", "start", decision.Reason, nil)
			}
			view := c.viewLocked()
			c.mu.Unlock()
			return view, services.Wrap(services.ErrPermissionDenied, "session", "start", decision.Reason, nil)
		}
	}

	if itemID != "" {
		if queue.SortingLocked && !resuming {
			view := c.viewLocked()
			c.mu.Unlock()
			return view, services.Wrap(services.ErrValidation, "session", "start", "queue "+queue.Name+" enforces a server-determined order; the next item is assigned automatically", nil)
		}
		if item, cached := c.dir.ItemByID(itemID); cached {
			if decision := permission.CanReviewItem(item, c.user.ID); !decision.Allowed {
				view := c.viewLocked()
				c.mu.Unlock()
				return view, services.Wrap(services.ErrPermissionDenied, "session", "start", decision.Reason, nil)
			}
		}
	}

	c.phase = PhaseRequesting
	c.epoch++
	epoch := c.epoch
	c.sessionID = uuid.NewString()
	c.queue = queue
	c.item = nil
	c.conflict = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("requesting item",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldQueueID, queueID),
		logging.String(logging.FieldItemID, itemID),
		logging.String(logging.FieldEventType, "session_request"),
	)

	var item *review.WorkItem
	var err error
	if itemID != "" {
		item, err = c.svc.ClaimItem(ctx, itemID, queueID)
	} else {
		item, err = c.svc.NextReviewItem(ctx, queueID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		// The reviewer abandoned this session before the response
		// arrived. If the server granted a lock anyway, give it back.
		if err == nil && item != nil {
			go c.releaseStray(item.ID)
		}
		return c.viewLocked(), ErrSuperseded
	}

	if err != nil {
		return c.resolveStartFailure(err)
	}

	c.phase = PhaseLocked
	c.item = item
	c.logger.Info("item locked",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldPhase, c.phase.String()),
	)
	go c.refreshRegistry()
	return c.viewLocked(), nil
}

func (c *Coordinator) resolveStartFailure(err error) (View, error) {
	var conflict *backend.ConflictError
	if errors.As(err, &conflict) {
		c.phase = PhaseConflict
		c.item = nil
		c.conflict = &Conflict{
			ItemID:  conflict.ItemID,
			OwnerID: conflict.OwnerID,
			QueueID: conflict.QueueID,
		}
		c.logger.Info("lock conflict",
			logging.String(logging.FieldSessionID, c.sessionID),
			logging.String(logging.FieldItemID, conflict.ItemID),
			logging.String("owner", conflict.OwnerID),
		)
		return c.viewLocked(), err
	}

	// Not found, permission, transient: nothing was acquired, so the
	// session simply never starts.
	c.phase = PhaseIdle
	c.item = nil
	c.sessionID = ""
	c.logger.Warn("start review failed",
		logging.String("kind", services.Kind(err)),
		logging.Error(err),
	)
	return c.viewLocked(), err
}

// ApplyLabel applies a decision to the locked item. On success the
// session clears and the returned advance flag tells the caller to
// request the next item. The hold label parks the item instead:
// the lock stays with the caller and the phase moves to Held. On
// failure the session stays locked so no work is silently lost.
func (c *Coordinator) ApplyLabel(ctx context.Context, label review.Label, notes string) (bool, error) {
	c.mu.Lock()
	if c.phase != PhaseLocked {
		phase := c.phase
		c.mu.Unlock()
		return false, services.Wrap(services.ErrValidation, "session", "label", "no locked item to label (phase "+phase.String()+")", nil)
	}
	if !c.queue.AllowsLabel(label) {
		c.mu.Unlock()
		return false, services.Wrap(services.ErrValidation, "session", "label", "label "+string(label)+" is not allowed on queue "+c.queue.Name, nil)
	}

	c.phase = PhaseLabeling
	epoch := c.epoch
	item := *c.item
	queueID := c.queue.ID
	sessionID := c.sessionID
	c.mu.Unlock()

	err := c.svc.ApplyLabel(ctx, item.ID, label, notes)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false, ErrSuperseded
	}

	if err != nil {
		return c.resolveLabelFailure(ctx, err, item, queueID)
	}

	if label.IsHold() {
		c.phase = PhaseHeld
		held := item
		held.Status = review.StatusOnHold
		held.LockedBy = c.user.ID
		c.item = &held
		c.logger.Info("item held",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldItemID, item.ID),
		)
		return false, nil
	}

	c.clearSessionLocked()
	c.dir.DecrementSize(queueID)
	c.logger.Info("label applied",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldItemID, item.ID),
		logging.String("label", string(label)),
		logging.String(logging.FieldEventType, "session_complete"),
	)
	go c.refreshRegistry()
	return true, nil
}

// resolveLabelFailure decides what a failed label means for the
// session. Transient failures with unknown server-side effect force a
// lock re-fetch before the coordinator trusts its own phase again.
func (c *Coordinator) resolveLabelFailure(ctx context.Context, err error, item review.WorkItem, queueID string) (bool, error) {
	if errors.Is(err, services.ErrNotFound) {
		// The item vanished underneath the session.
		c.clearSessionLocked()
		c.logger.Warn("labeled item no longer exists",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err),
		)
		return false, err
	}

	if services.Retryable(err) {
		if refreshErr := c.registry.Refresh(ctx); refreshErr == nil {
			if _, stillHeld := c.registry.LockFor(item.ID); !stillHeld {
				// The server released the lock, so the decision landed
				// even though the response was lost.
				c.clearSessionLocked()
				c.dir.DecrementSize(queueID)
				c.logger.Warn("label outcome recovered from lock state",
					logging.String(logging.FieldItemID, item.ID),
				)
				return true, nil
			}
		}
	}

	c.phase = PhaseLocked
	return false, err
}

// Resume returns a held item to the normal labeling flow.
func (c *Coordinator) Resume() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseHeld {
		return c.viewLocked(), services.Wrap(services.ErrValidation, "session", "resume", "no held item (phase "+c.phase.String()+")", nil)
	}
	c.phase = PhaseLocked
	return c.viewLocked(), nil
}

// Finish releases the session's lock without a decision and returns
// the coordinator to idle. Calling it with no active session is a
// no-op. Calling it while a request is in flight abandons that
// session; the late response will be discarded.
func (c *Coordinator) Finish(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseIdle:
		c.mu.Unlock()
		return nil
	case PhaseConflict:
		c.clearSessionLocked()
		c.mu.Unlock()
		return nil
	case PhaseRequesting, PhaseLabeling:
		// Abandon the in-flight operation; the epoch bump makes its
		// response stale on arrival.
		c.epoch++
		item := c.item
		c.clearSessionLocked()
		c.mu.Unlock()
		if item != nil {
			return c.registry.Release(ctx, item.ID)
		}
		return nil
	}

	item := c.item
	sessionID := c.sessionID
	c.epoch++
	c.clearSessionLocked()
	c.mu.Unlock()

	if item == nil {
		return nil
	}
	if err := c.registry.Release(ctx, item.ID); err != nil {
		return err
	}
	c.logger.Info("session finished without decision",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldEventType, "session_unlocked"),
	)
	return nil
}

// AcknowledgeConflict clears a conflict and reports the lock the
// reviewer already holds, if any, so the UI can redirect to it.
func (c *Coordinator) AcknowledgeConflict() (review.Lock, bool) {
	c.mu.Lock()
	if c.phase == PhaseConflict {
		c.clearSessionLocked()
	}
	c.mu.Unlock()
	return c.registry.HeldLock()
}

// Reconcile re-fetches the reviewer's locks and corrects the phase
// when the two disagree: a session whose lock disappeared server-side
// drops to idle. Called after uncertain outcomes and on lock-snapshot
// refreshes.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	if err := c.registry.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.phase == PhaseLocked || c.phase == PhaseHeld) && c.item != nil {
		if _, stillHeld := c.registry.LockFor(c.item.ID); !stillHeld {
			c.logger.Warn("session lock lost server-side, dropping to idle",
				logging.String(logging.FieldItemID, c.item.ID),
				logging.String(logging.FieldErrorHint, "another device or an admin may have released the lock"),
			)
			c.clearSessionLocked()
		}
	}
	return nil
}

func (c *Coordinator) clearSessionLocked() {
	c.phase = PhaseIdle
	c.sessionID = ""
	c.item = nil
	c.conflict = nil
}

// refreshRegistry updates the lock snapshot after an ownership change.
// Failures only age the snapshot, so they are logged and dropped.
func (c *Coordinator) refreshRegistry() {
	if err := c.registry.Refresh(context.Background()); err != nil {
		c.logger.Debug("lock snapshot refresh failed", logging.Error(err))
	}
}

// releaseStray gives back a lock granted to an already-abandoned
// session.
func (c *Coordinator) releaseStray(itemID string) {
	if err := c.registry.Release(context.Background(), itemID); err != nil {
		c.logger.Warn("failed to release stray lock",
			logging.String(logging.FieldItemID, itemID),
			logging.Error(err),
		)
	}
}
