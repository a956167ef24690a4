package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"triage/internal/logging"
	"triage/internal/review"
	"triage/internal/services"
)

// Service is the remote queue/item API the directory consumes.
type Service interface {
	ListQueues(ctx context.Context, view review.ViewType) ([]review.Queue, error)
	GetQueue(ctx context.Context, queueID string) (*review.Queue, error)
	ListItems(ctx context.Context, queueID, cursor string, limit int) ([]review.WorkItem, string, error)
}

// HistoricalResolver looks up a queue that the live API no longer
// serves, typically because it was archived. It is optional.
type HistoricalResolver func(ctx context.Context, queueID string) (*review.Queue, error)

// Directory caches the known queue set per view and the item pages of
// the currently selected queue. All mutations happen as the result of
// an awaited fetch; lookups never trigger network calls.
type Directory struct {
	svc        Service
	historical HistoricalResolver
	pageSize   int
	logger     *slog.Logger

	mu        sync.RWMutex
	queues    map[review.ViewType][]review.Queue
	fetchedAt map[review.ViewType]time.Time
	pages     pageState
}

// Option configures optional Directory behavior.
type Option func(*Directory)

// WithHistoricalResolver installs a fallback lookup for queues the
// live API reports as gone.
func WithHistoricalResolver(resolver HistoricalResolver) Option {
	return func(d *Directory) {
		d.historical = resolver
	}
}

// WithPageSize overrides the item page size.
func WithPageSize(size int) Option {
	return func(d *Directory) {
		if size > 0 {
			d.pageSize = size
		}
	}
}

// New constructs a queue directory over the given service.
func New(svc Service, logger *slog.Logger, opts ...Option) *Directory {
	d := &Directory{
		svc:       svc,
		pageSize:  50,
		logger:    logging.NewComponentLogger(logger, "directory"),
		queues:    make(map[review.ViewType][]review.Queue),
		fetchedAt: make(map[review.ViewType]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RefreshQueues fetches the queue set for a view and replaces the
// cached entry wholesale.
func (d *Directory) RefreshQueues(ctx context.Context, view review.ViewType) error {
	fetched, err := d.svc.ListQueues(ctx, view)
	if err != nil {
		return err
	}
	now := time.Now()

	d.mu.Lock()
	d.queues[view] = fetched
	d.fetchedAt[view] = now
	d.mu.Unlock()

	d.logger.Debug("queue set refreshed",
		logging.String("view", string(view)),
		logging.Int("queues", len(fetched)),
	)
	return nil
}

// Queues returns a copy of the cached queue set for a view. It never
// triggers a network call; an unfetched view yields an empty slice.
func (d *Directory) Queues(view review.ViewType) []review.Queue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cached := d.queues[view]
	cp := make([]review.Queue, len(cached))
	copy(cp, cached)
	return cp
}

// QueueByID is a pure lookup against the cached queue sets.
func (d *Directory) QueueByID(queueID string) (review.Queue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, cached := range d.queues {
		for _, queue := range cached {
			if queue.ID == queueID {
				return queue, true
			}
		}
	}
	return review.Queue{}, false
}

// LastRefreshed reports when a view's queue set was last fetched.
func (d *Directory) LastRefreshed(view review.ViewType) time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetchedAt[view]
}

// RefreshOne re-fetches a single queue and updates its cache entry in
// place, leaving the rest of the view untouched so a polling refresh
// never disturbs unrelated rows. A queue the live API no longer knows
// is resolved through the historical fallback when one is installed.
func (d *Directory) RefreshOne(ctx context.Context, queueID string) (*review.Queue, error) {
	queue, err := d.svc.GetQueue(ctx, queueID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) && d.historical != nil {
			d.logger.Debug("queue missing from live API, trying historical lookup",
				logging.String(logging.FieldQueueID, queueID),
			)
			archived, histErr := d.historical(ctx, queueID)
			if histErr != nil {
				return nil, histErr
			}
			return archived, nil
		}
		return nil, err
	}

	d.mu.Lock()
	d.updateInPlaceLocked(*queue)
	d.mu.Unlock()
	return queue, nil
}

// updateInPlaceLocked replaces a cached queue entry without reordering
// its view. Queues not yet cached are left alone; the next full
// refresh will pick them up.
func (d *Directory) updateInPlaceLocked(queue review.Queue) {
	for view, cached := range d.queues {
		for i, existing := range cached {
			if existing.ID == queue.ID {
				next := make([]review.Queue, len(cached))
				copy(next, cached)
				next[i] = queue
				d.queues[view] = next
				return
			}
		}
	}
}

// DecrementSize drops a cached queue's remaining-item count by one,
// flooring at zero. Called after a label completes; the authoritative
// count arrives with the next refresh.
func (d *Directory) DecrementSize(queueID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for view, cached := range d.queues {
		for i, existing := range cached {
			if existing.ID == queueID {
				next := make([]review.Queue, len(cached))
				copy(next, cached)
				if next[i].Size > 0 {
					next[i].Size--
				}
				d.queues[view] = next
				return
			}
		}
	}
}
