package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"triage/internal/logging"
)

// Target pairs a cached resource with its staleness bound and the
// fetch that freshens it.
type Target struct {
	Key      string
	Interval time.Duration
	Refresh  func(ctx context.Context) error
}

type targetState struct {
	target        Target
	lastRefreshed time.Time
}

// Scheduler runs one repeating timer per screen. Each tick walks the
// registered targets and refreshes only those whose staleness bound
// has elapsed, keeping the check cadence decoupled from the refresh
// cadence.
type Scheduler struct {
	tick   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]*targetState
	order   []string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler constructs a stopped scheduler with the given tick
// interval.
func NewScheduler(tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	return &Scheduler{
		tick:    tick,
		logger:  logging.NewComponentLogger(logger, "refresh"),
		targets: make(map[string]*targetState),
	}
}

// Register adds or replaces a refresh target. A replaced target keeps
// its staleness clock.
func (s *Scheduler) Register(target Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.targets[target.Key]; ok {
		existing.target = target
		return
	}
	s.targets[target.Key] = &targetState{target: target}
	s.order = append(s.order, target.Key)
}

// Deregister removes a target, typically when the resource leaves the
// screen.
func (s *Scheduler) Deregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[key]; !ok {
		return
	}
	delete(s.targets, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// MarkRefreshed resets a target's staleness clock, used when the
// resource was just fetched outside the scheduler.
func (s *Scheduler) MarkRefreshed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.targets[key]; ok {
		state.lastRefreshed = time.Now()
	}
}

// Start begins ticking until Stop or context cancellation. Starting a
// running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("refresh scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// Stop tears the timer down entirely and waits for the loop to exit.
// No tick fires after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshDue(ctx)
		}
	}
}

// refreshDue runs the refresh for every stale target, in registration
// order. Refreshes run sequentially: one screen, one logical control
// flow.
func (s *Scheduler) refreshDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]Target, 0, len(s.order))
	for _, key := range s.order {
		state := s.targets[key]
		if now.Sub(state.lastRefreshed) > state.target.Interval {
			due = append(due, state.target)
		}
	}
	s.mu.Unlock()

	for _, target := range due {
		if ctx.Err() != nil {
			return
		}
		err := target.Refresh(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("refresh failed",
				logging.String("target", target.Key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "will retry after the staleness interval"),
			)
		}
		// The clock resets even on failure so a broken backend is
		// retried at the staleness cadence, not on every tick.
		s.mu.Lock()
		if state, ok := s.targets[target.Key]; ok {
			state.lastRefreshed = time.Now()
		}
		s.mu.Unlock()
	}
}
