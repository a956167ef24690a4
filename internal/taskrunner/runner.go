package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"triage/internal/logging"
)

// Task is one named unit of sequential work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes enqueued tasks strictly in insertion order. A Start
// call while a run is in flight attaches to that run instead of
// interleaving a second one. On failure the run stops short: the
// remaining tasks stay enqueued and a later Start resumes draining
// them.
type Runner struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []Task
	done    chan struct{}
	runErr  error
}

// New constructs an empty runner.
func New(logger *slog.Logger) *Runner {
	return &Runner{logger: logging.NewComponentLogger(logger, "taskrunner")}
}

// Enqueue appends tasks to the queue in the given order.
func (r *Runner) Enqueue(tasks ...Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, tasks...)
}

// Pending reports how many tasks remain enqueued.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Start drains the queue in order, stopping at the first failure. The
// returned error names both the failing task and the next task still
// pending. If a run is already in flight, Start waits for it and
// returns its outcome.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		done := r.done
		r.mu.Unlock()
		<-done
		r.mu.Lock()
		err := r.runErr
		r.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	err := r.drain(ctx)

	r.mu.Lock()
	r.runErr = err
	r.done = nil
	r.mu.Unlock()
	close(done)
	return err
}

func (r *Runner) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return nil
		}
		task := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()

		r.logger.Debug("task started", logging.String("task", task.Name))
		if err := task.Run(ctx); err != nil {
			next := r.nextPendingName()
			r.logger.Warn("task failed, run stopped",
				logging.String("task", task.Name),
				logging.String("next_pending", next),
				logging.Error(err),
			)
			return fmt.Errorf("task %q failed (next pending: %s): %w", task.Name, next, err)
		}
	}
}

func (r *Runner) nextPendingName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return "none"
	}
	return fmt.Sprintf("%q", r.pending[0].Name)
}
