package session

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"triage/internal/logging"
	"triage/internal/review"
	"triage/internal/services"
)

// BatchItem identifies one item in a batch labeling request.
type BatchItem struct {
	ItemID  string
	QueueID string
}

// BatchFailure records one item that could not be labeled.
type BatchFailure struct {
	Item   BatchItem
	Reason string
	Kind   string
}

// BatchResult aggregates per-item outcomes of a batch labeling run.
type BatchResult struct {
	Succeeded int
	Failures  []BatchFailure
}

// Failed returns the number of items that were not labeled.
func (r BatchResult) Failed() int {
	return len(r.Failures)
}

// ApplyLabelBatch applies one label to many items, reusing the
// per-item lock-then-label contract once per item. Outcomes are
// independent: a failure on one item never blocks the others, and the
// result is best-effort rather than atomic. Fan-out is bounded by the
// coordinator's batch concurrency.
func (c *Coordinator) ApplyLabelBatch(ctx context.Context, items []BatchItem, label review.Label, notes string) BatchResult {
	var (
		mu     sync.Mutex
		result BatchResult
	)
	record := func(item BatchItem, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Succeeded++
			return
		}
		result.Failures = append(result.Failures, BatchFailure{
			Item:   item,
			Reason: err.Error(),
			Kind:   services.Kind(err),
		})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.batchConcurrency)
	for _, item := range items {
		group.Go(func() error {
			record(item, c.labelOne(groupCtx, item, label, notes))
			// Individual failures are aggregated, never propagated,
			// so one bad item cannot cancel the rest of the batch.
			return nil
		})
	}
	_ = group.Wait()

	c.logger.Info("batch label finished",
		logging.String("label", string(label)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed()),
	)
	return result
}

func (c *Coordinator) labelOne(ctx context.Context, item BatchItem, label review.Label, notes string) error {
	if _, err := c.svc.ClaimItem(ctx, item.ItemID, item.QueueID); err != nil {
		return err
	}
	if err := c.svc.ApplyLabel(ctx, item.ItemID, label, notes); err != nil {
		// Leave no stray lock behind when the label step fails.
		c.releaseStray(item.ItemID)
		return err
	}
	c.dir.DecrementSize(item.QueueID)
	return nil
}
