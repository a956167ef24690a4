package directory

import (
	"context"

	"triage/internal/logging"
	"triage/internal/review"
)

// pageState tracks the item pages of the currently selected queue.
type pageState struct {
	queueID     string
	items       []review.WorkItem
	cursor      string
	canLoadMore bool
	fetched     bool
}

// FetchItemsPage loads the next page of items for a queue. Pages for
// the same queue append; selecting a different queue resets to the
// first page automatically. It returns the accumulated items and
// whether more pages remain.
func (d *Directory) FetchItemsPage(ctx context.Context, queueID string) ([]review.WorkItem, bool, error) {
	d.mu.Lock()
	if d.pages.queueID != queueID {
		d.pages = pageState{queueID: queueID}
	}
	if d.pages.fetched && !d.pages.canLoadMore {
		items := copyItems(d.pages.items)
		d.mu.Unlock()
		return items, false, nil
	}
	cursor := d.pages.cursor
	d.mu.Unlock()

	fetched, nextCursor, err := d.svc.ListItems(ctx, queueID, cursor, d.pageSize)
	if err != nil {
		return nil, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages.queueID != queueID {
		// Selection changed while the fetch was in flight; drop the
		// stale page instead of appending it to the new queue's view.
		return copyItems(d.pages.items), d.pages.canLoadMore, nil
	}
	d.pages.items = append(d.pages.items, fetched...)
	d.pages.cursor = nextCursor
	d.pages.canLoadMore = nextCursor != ""
	d.pages.fetched = true

	d.logger.Debug("item page fetched",
		logging.String(logging.FieldQueueID, queueID),
		logging.Int("page_items", len(fetched)),
		logging.Int("total_items", len(d.pages.items)),
		logging.Bool("can_load_more", d.pages.canLoadMore),
	)
	return copyItems(d.pages.items), d.pages.canLoadMore, nil
}

// Items returns the accumulated item pages for the selected queue
// without fetching.
func (d *Directory) Items(queueID string) ([]review.WorkItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pages.queueID != queueID {
		return nil, false
	}
	return copyItems(d.pages.items), d.pages.canLoadMore
}

// ItemByID is a pure lookup against the accumulated item pages.
func (d *Directory) ItemByID(itemID string) (review.WorkItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, item := range d.pages.items {
		if item.ID == itemID {
			return item, true
		}
	}
	return review.WorkItem{}, false
}

// ResetItems clears the accumulated pages, forcing the next fetch to
// start from the first page.
func (d *Directory) ResetItems() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = pageState{}
}

func copyItems(items []review.WorkItem) []review.WorkItem {
	cp := make([]review.WorkItem, len(items))
	copy(cp, items)
	return cp
}
