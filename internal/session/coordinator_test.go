package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triage/internal/directory"
	"triage/internal/identity"
	"triage/internal/locks"
	"triage/internal/logging"
	"triage/internal/review"
	"triage/internal/services"
	"triage/internal/services/backend"
	"triage/internal/session"
)

// fakeReviewService implements the lock, directory, and session
// service interfaces in memory with the server-side semantics the
// coordinator depends on: strict head-of-order assignment and
// authoritative per-item locks.
type fakeReviewService struct {
	user string

	mu    sync.Mutex
	qs    []review.Queue
	items map[string][]*review.WorkItem
	locks map[string]review.Lock

	nextStarted chan struct{}
	nextGate    chan struct{}

	labelErr        error
	labelErrApplies bool
	labelCalls      int
	nextCalls       int
}

func (f *fakeReviewService) nextCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextCalls
}

func (f *fakeReviewService) labelCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labelCalls
}

func newFakeReviewService(user string) *fakeReviewService {
	return &fakeReviewService{
		user:  user,
		items: make(map[string][]*review.WorkItem),
		locks: make(map[string]review.Lock),
	}
}

func (f *fakeReviewService) addQueue(queue review.Queue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qs = append(f.qs, queue)
}

func (f *fakeReviewService) addItem(queueID string, item review.WorkItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := item
	f.items[queueID] = append(f.items[queueID], &cp)
}

func (f *fakeReviewService) lockAs(queueID, itemID, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks[itemID] = review.Lock{ItemID: itemID, OwnerID: owner, QueueID: queueID}
	for _, item := range f.items[queueID] {
		if item.ID == itemID {
			item.LockedBy = owner
		}
	}
}

func (f *fakeReviewService) unlock(itemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, itemID)
	for _, items := range f.items {
		for _, item := range items {
			if item.ID == itemID {
				item.LockedBy = ""
			}
		}
	}
}

func (f *fakeReviewService) lockOwner(itemID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[itemID]
	return lock.OwnerID, ok
}

func (f *fakeReviewService) itemStatus(queueID, itemID string) review.ItemStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items[queueID] {
		if item.ID == itemID {
			return item.Status
		}
	}
	return ""
}

func (f *fakeReviewService) ListQueues(ctx context.Context, view review.ViewType) ([]review.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]review.Queue, 0, len(f.qs))
	for _, queue := range f.qs {
		if queue.View() == view {
			out = append(out, queue)
		}
	}
	return out, nil
}

func (f *fakeReviewService) GetQueue(ctx context.Context, queueID string) (*review.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, queue := range f.qs {
		if queue.ID == queueID {
			cp := queue
			return &cp, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "fake", "get_queue", "queue not found", nil)
}

func (f *fakeReviewService) ListItems(ctx context.Context, queueID, cursor string, limit int) ([]review.WorkItem, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]review.WorkItem, 0, len(f.items[queueID]))
	for _, item := range f.items[queueID] {
		out = append(out, *item)
	}
	return out, "", nil
}

func (f *fakeReviewService) NextReviewItem(ctx context.Context, queueID string) (*review.WorkItem, error) {
	f.mu.Lock()
	started := f.nextStarted
	gate := f.nextGate
	f.nextCalls++
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items[queueID] {
		if !item.Active || item.Status != review.StatusAwaiting {
			continue
		}
		if lock, locked := f.locks[item.ID]; locked {
			if lock.OwnerID == f.user {
				cp := *item
				return &cp, nil
			}
			return nil, &backend.ConflictError{ItemID: lock.ItemID, OwnerID: lock.OwnerID, QueueID: lock.QueueID}
		}
		f.locks[item.ID] = review.Lock{ItemID: item.ID, OwnerID: f.user, QueueID: queueID}
		item.LockedBy = f.user
		cp := *item
		return &cp, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "fake", "next", "no reviewable items", nil)
}

func (f *fakeReviewService) ClaimItem(ctx context.Context, itemID, queueID string) (*review.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items[queueID] {
		if item.ID != itemID {
			continue
		}
		if !item.Active {
			return nil, services.Wrap(services.ErrNotFound, "fake", "claim", "item no longer active", nil)
		}
		if lock, locked := f.locks[itemID]; locked && lock.OwnerID != f.user {
			return nil, &backend.ConflictError{ItemID: lock.ItemID, OwnerID: lock.OwnerID, QueueID: lock.QueueID}
		}
		f.locks[itemID] = review.Lock{ItemID: itemID, OwnerID: f.user, QueueID: queueID}
		item.LockedBy = f.user
		cp := *item
		return &cp, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "fake", "claim", "item not found", nil)
}

func (f *fakeReviewService) ApplyLabel(ctx context.Context, itemID string, label review.Label, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls++

	apply := true
	var injected error
	if f.labelErr != nil {
		injected = f.labelErr
		f.labelErr = nil
		apply = f.labelErrApplies
	}
	if apply {
		f.applyLabelLocked(itemID, label)
	}
	return injected
}

func (f *fakeReviewService) applyLabelLocked(itemID string, label review.Label) {
	for _, items := range f.items {
		for _, item := range items {
			if item.ID != itemID {
				continue
			}
			switch label {
			case review.LabelGood:
				item.Status = review.StatusGood
			case review.LabelBad:
				item.Status = review.StatusBad
			case review.LabelEscalate:
				item.Status = review.StatusEscalated
			case review.LabelHold:
				item.Status = review.StatusOnHold
				return
			}
			delete(f.locks, itemID)
			item.LockedBy = ""
			return
		}
	}
}

func (f *fakeReviewService) ListLocks(ctx context.Context) ([]review.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]review.Lock, 0, len(f.locks))
	for _, lock := range f.locks {
		if lock.OwnerID == f.user {
			out = append(out, lock)
		}
	}
	return out, nil
}

func (f *fakeReviewService) ReleaseLock(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lock, ok := f.locks[itemID]; ok && lock.OwnerID == f.user {
		delete(f.locks, itemID)
		for _, items := range f.items {
			for _, item := range items {
				if item.ID == itemID {
					item.LockedBy = ""
				}
			}
		}
	}
	return nil
}

type env struct {
	svc      *fakeReviewService
	registry *locks.Registry
	dir      *directory.Directory
	coord    *session.Coordinator
	user     identity.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	user := identity.User{ID: "reviewer-1", Roles: []string{identity.RoleReviewer}}
	svc := newFakeReviewService(user.ID)
	logger := logging.NewNop()
	registry := locks.NewRegistry(svc, logger)
	dir := directory.New(svc, logger)
	coord := session.New(svc, registry, dir, user, logger)
	return &env{svc: svc, registry: registry, dir: dir, coord: coord, user: user}
}

func (e *env) seedQueue(t *testing.T, queue review.Queue, items ...review.WorkItem) {
	t.Helper()
	e.svc.addQueue(queue)
	for _, item := range items {
		e.svc.addItem(queue.ID, item)
	}
	if err := e.dir.RefreshQueues(context.Background(), queue.View()); err != nil {
		t.Fatalf("RefreshQueues() error = %v", err)
	}
}

func strictQueue(id string, size int) review.Queue {
	return review.Queue{
		ID:            id,
		Name:          "Queue " + id,
		SortingLocked: true,
		AllowedLabels: []review.Label{review.LabelGood, review.LabelBad, review.LabelEscalate},
		Reviewers:     []string{"reviewer-1"},
		Size:          size,
	}
}

func awaiting(id string) review.WorkItem {
	return review.WorkItem{ID: id, Status: review.StatusAwaiting, Active: true}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartLabelAdvanceWalk(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 3), awaiting("i1"), awaiting("i2"), awaiting("i3"))
	ctx := context.Background()

	view, err := e.coord.Start(ctx, "q1", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if view.Phase != session.PhaseLocked || view.Item == nil || view.Item.ID != "i1" {
		t.Fatalf("view = %+v, want locked on i1", view)
	}
	if owner, ok := e.svc.lockOwner("i1"); !ok || owner != "reviewer-1" {
		t.Fatalf("server lock = (%q, %v), want reviewer-1", owner, ok)
	}

	advance, err := e.coord.ApplyLabel(ctx, review.LabelGood, "done")
	if err != nil {
		t.Fatalf("ApplyLabel() error = %v", err)
	}
	if !advance {
		t.Fatal("successful label should advance")
	}
	if got := e.coord.Snapshot().Phase; got != session.PhaseIdle {
		t.Fatalf("phase after label = %s, want idle", got)
	}
	if _, locked := e.svc.lockOwner("i1"); locked {
		t.Fatal("label should release the server lock")
	}
	if e.svc.itemStatus("q1", "i1") != review.StatusGood {
		t.Fatal("label should set the item status")
	}
	if queue, _ := e.dir.QueueByID("q1"); queue.Size != 2 {
		t.Fatalf("cached queue size = %d, want 2", queue.Size)
	}

	// The next session gets the next item in order.
	view, err = e.coord.Start(ctx, "q1", "")
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if view.Item.ID != "i2" {
		t.Fatalf("second item = %s, want i2", view.Item.ID)
	}
}

func TestStartConflictsWhenHoldingLockOnAnotherQueue(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 2), awaiting("i1"), awaiting("i2"))
	e.seedQueue(t, strictQueue("q2", 1), awaiting("j1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start(q1) error = %v", err)
	}
	if err := e.registry.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// A second screen shares the registry and sees the held lock.
	other := session.New(e.svc, e.registry, e.dir, e.user, logging.NewNop())
	view, err := other.Start(ctx, "q2", "")
	if !errors.Is(err, services.ErrLockConflict) {
		t.Fatalf("Start(q2) error = %v, want lock conflict", err)
	}
	if view.Phase != session.PhaseConflict {
		t.Fatalf("phase = %s, want conflict", view.Phase)
	}
	if view.Conflict == nil || view.Conflict.ItemID != "i1" || view.Conflict.QueueID != "q1" {
		t.Fatalf("conflict = %+v, want held lock on i1 in q1", view.Conflict)
	}
	if _, locked := e.svc.lockOwner("j1"); locked {
		t.Fatal("no second lock may be acquired")
	}

	// Acknowledging redirects to the lock the reviewer already holds.
	held, ok := other.AcknowledgeConflict()
	if !ok || held.ItemID != "i1" {
		t.Fatalf("AcknowledgeConflict() = (%+v, %v), want i1", held, ok)
	}
	if other.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("acknowledge should clear the conflict")
	}
}

func TestStartConflictWhenHeadLockedByOtherReviewer(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 2), awaiting("i1"), awaiting("i2"))
	e.svc.lockAs("q1", "i1", "reviewer-2")
	ctx := context.Background()

	view, err := e.coord.Start(ctx, "q1", "")
	var conflict *backend.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Start() error = %v, want ConflictError", err)
	}
	if view.Phase != session.PhaseConflict {
		t.Fatalf("phase = %s, want conflict", view.Phase)
	}
	if view.Conflict.OwnerID != "reviewer-2" || view.Conflict.ItemID != "i1" {
		t.Fatalf("conflict = %+v, want i1 by reviewer-2", view.Conflict)
	}

	// Strict order never skips ahead past a locked head.
	if _, locked := e.svc.lockOwner("i2"); locked {
		t.Fatal("i2 must not be assigned while the head is taken")
	}

	if _, ok := e.coord.AcknowledgeConflict(); ok {
		t.Fatal("reviewer holds nothing to redirect to")
	}
	if e.coord.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("acknowledge should return to idle")
	}
}

func TestStartPermissionDenials(t *testing.T) {
	e := newEnv(t)
	empty := strictQueue("q-empty", 0)
	e.seedQueue(t, empty)
	foreign := strictQueue("q-foreign", 2)
	foreign.Reviewers = []string{"someone-else"}
	e.seedQueue(t, foreign, awaiting("f1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q-empty", ""); !errors.Is(err, services.ErrPermissionDenied) {
		t.Fatalf("empty queue error = %v, want permission denied", err)
	}
	if _, err := e.coord.Start(ctx, "q-foreign", ""); !errors.Is(err, services.ErrPermissionDenied) {
		t.Fatalf("foreign queue error = %v, want permission denied", err)
	}
	if got := e.svc.nextCallCount(); got != 0 {
		t.Fatalf("pre-flight denials reached the network %d times", got)
	}
	if e.coord.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("denied start should leave the session idle")
	}
}

func TestStartFreePickRejectedOnStrictQueue(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 2), awaiting("i1"), awaiting("i2"))

	_, err := e.coord.Start(context.Background(), "q1", "i2")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("free pick error = %v, want validation", err)
	}
	if e.svc.nextCallCount() != 0 {
		t.Fatal("rejected free pick must not reach the network")
	}
}

func TestStartFreePickOnFreeQueue(t *testing.T) {
	e := newEnv(t)
	queue := strictQueue("q1", 2)
	queue.SortingLocked = false
	e.seedQueue(t, queue, awaiting("i1"), awaiting("i2"))

	view, err := e.coord.Start(context.Background(), "q1", "i2")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if view.Phase != session.PhaseLocked || view.Item.ID != "i2" {
		t.Fatalf("view = %+v, want locked on i2", view)
	}
}

func TestFinishReleasesAndIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 1), awaiting("i1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.coord.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if e.coord.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("finish should idle the session")
	}
	if _, locked := e.svc.lockOwner("i1"); locked {
		t.Fatal("finish should release the server lock")
	}
	if e.svc.itemStatus("q1", "i1") != review.StatusAwaiting {
		t.Fatal("finish without a decision must not change the status")
	}

	// Finishing again, with nothing held, is a no-op.
	if err := e.coord.Finish(ctx); err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
}

func TestHoldParksItemAndResumeReturnsIt(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 2), awaiting("i1"), awaiting("i2"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	advance, err := e.coord.ApplyLabel(ctx, review.LabelHold, "waiting on info")
	if err != nil {
		t.Fatalf("ApplyLabel(hold) error = %v", err)
	}
	if advance {
		t.Fatal("hold must not advance")
	}
	view := e.coord.Snapshot()
	if view.Phase != session.PhaseHeld || view.Item.Status != review.StatusOnHold {
		t.Fatalf("view = %+v, want held on_hold item", view)
	}
	if owner, ok := e.svc.lockOwner("i1"); !ok || owner != "reviewer-1" {
		t.Fatal("hold keeps the lock with the caller")
	}
	if queue, _ := e.dir.QueueByID("q1"); queue.Size != 2 {
		t.Fatal("hold does not consume a queue slot")
	}

	// Labels are rejected while held.
	if _, err := e.coord.ApplyLabel(ctx, review.LabelGood, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("label while held error = %v, want validation", err)
	}

	if _, err := e.coord.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	advance, err = e.coord.ApplyLabel(ctx, review.LabelGood, "")
	if err != nil || !advance {
		t.Fatalf("ApplyLabel after resume = (%v, %v), want advance", advance, err)
	}
}

func TestLabelOutsideAllowedSetRejectedLocally(t *testing.T) {
	e := newEnv(t)
	queue := strictQueue("q1", 1)
	queue.AllowedLabels = []review.Label{review.LabelGood}
	e.seedQueue(t, queue, awaiting("i1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := e.coord.ApplyLabel(ctx, review.LabelEscalate, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("disallowed label error = %v, want validation", err)
	}
	if e.svc.labelCallCount() != 0 {
		t.Fatal("disallowed label must not reach the network")
	}
	if e.coord.Snapshot().Phase != session.PhaseLocked {
		t.Fatal("session should stay locked after a local rejection")
	}
}

func TestFinishDuringRequestDiscardsLateResponse(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 1), awaiting("i1"))
	ctx := context.Background()

	e.svc.nextStarted = make(chan struct{}, 1)
	e.svc.nextGate = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := e.coord.Start(ctx, "q1", "")
		errCh <- err
	}()
	<-e.svc.nextStarted

	if e.coord.Snapshot().Phase != session.PhaseRequesting {
		t.Fatal("session should be requesting while the call is in flight")
	}
	if err := e.coord.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	close(e.svc.nextGate)

	if err := <-errCh; !errors.Is(err, session.ErrSuperseded) {
		t.Fatalf("late Start() error = %v, want ErrSuperseded", err)
	}
	if e.coord.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("discarded response must not move the session off idle")
	}

	// The stray lock granted to the abandoned session is given back.
	waitFor(t, func() bool {
		_, locked := e.svc.lockOwner("i1")
		return !locked
	})
}

func TestLabelOutcomeRecoveredFromLockState(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 1), awaiting("i1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The label lands server-side but the response is lost.
	e.svc.mu.Lock()
	e.svc.labelErr = services.Wrap(services.ErrTransient, "fake", "label", "response lost", nil)
	e.svc.labelErrApplies = true
	e.svc.mu.Unlock()

	advance, err := e.coord.ApplyLabel(ctx, review.LabelGood, "")
	if err != nil {
		t.Fatalf("ApplyLabel() error = %v, want recovery", err)
	}
	if !advance {
		t.Fatal("recovered outcome should advance")
	}
	if queue, _ := e.dir.QueueByID("q1"); queue.Size != 0 {
		t.Fatalf("queue size = %d, want 0", queue.Size)
	}
}

func TestLabelFailureKeepsSessionWhenLockSurvives(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 1), awaiting("i1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The label never reached the server; the lock is still held.
	e.svc.mu.Lock()
	e.svc.labelErr = services.Wrap(services.ErrTransient, "fake", "label", "connection reset", nil)
	e.svc.labelErrApplies = false
	e.svc.mu.Unlock()

	advance, err := e.coord.ApplyLabel(ctx, review.LabelGood, "")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("ApplyLabel() error = %v, want transient", err)
	}
	if advance {
		t.Fatal("failed label must not advance")
	}
	if e.coord.Snapshot().Phase != session.PhaseLocked {
		t.Fatal("session should stay locked so the decision can be retried")
	}

	// The retry succeeds.
	advance, err = e.coord.ApplyLabel(ctx, review.LabelGood, "")
	if err != nil || !advance {
		t.Fatalf("retry = (%v, %v), want advance", advance, err)
	}
}

func TestReconcileDropsSessionWhoseLockVanished(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 1), awaiting("i1"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// An admin released the lock out from under the session.
	e.svc.unlock("i1")
	if err := e.coord.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if e.coord.Snapshot().Phase != session.PhaseIdle {
		t.Fatal("session without a server lock should drop to idle")
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	e := newEnv(t)
	e.seedQueue(t, strictQueue("q1", 2), awaiting("i1"), awaiting("i2"))
	ctx := context.Background()

	if _, err := e.coord.Start(ctx, "q1", ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := e.coord.Start(ctx, "q1", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second Start() error = %v, want validation", err)
	}
	if view := e.coord.Snapshot(); view.Phase != session.PhaseLocked || view.Item.ID != "i1" {
		t.Fatal("rejected start must not disturb the active session")
	}
}
