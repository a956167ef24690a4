package directory_test

import (
	"context"
	"testing"

	"triage/internal/directory"
	"triage/internal/logging"
	"triage/internal/review"
)

func itemFixture(id string) review.WorkItem {
	return review.WorkItem{ID: id, Status: review.StatusAwaiting, Active: true}
}

func TestFetchItemsPageAppends(t *testing.T) {
	svc := newFakeQueueService()
	svc.addQueue(queueFixture("q1", 3))
	svc.items["q1"] = []review.WorkItem{itemFixture("i1"), itemFixture("i2"), itemFixture("i3")}

	dir := directory.New(svc, logging.NewNop(), directory.WithPageSize(2))
	ctx := context.Background()

	items, more, err := dir.FetchItemsPage(ctx, "q1")
	if err != nil {
		t.Fatalf("FetchItemsPage() error = %v", err)
	}
	if len(items) != 2 || !more {
		t.Fatalf("first page = %d items more=%v, want 2 items and more", len(items), more)
	}

	items, more, err = dir.FetchItemsPage(ctx, "q1")
	if err != nil {
		t.Fatalf("second FetchItemsPage() error = %v", err)
	}
	if len(items) != 3 || more {
		t.Fatalf("accumulated = %d items more=%v, want 3 items and no more", len(items), more)
	}
	if items[2].ID != "i3" {
		t.Fatalf("last item = %s, want i3", items[2].ID)
	}

	// Exhausted pages are served from cache without another fetch.
	items, more, err = dir.FetchItemsPage(ctx, "q1")
	if err != nil {
		t.Fatalf("third FetchItemsPage() error = %v", err)
	}
	if len(items) != 3 || more {
		t.Fatalf("cached page = %d items more=%v", len(items), more)
	}
}

func TestFetchItemsPageResetsOnQueueChange(t *testing.T) {
	svc := newFakeQueueService()
	svc.addQueue(queueFixture("q1", 2))
	svc.addQueue(queueFixture("q2", 1))
	svc.items["q1"] = []review.WorkItem{itemFixture("a1"), itemFixture("a2")}
	svc.items["q2"] = []review.WorkItem{itemFixture("b1")}

	dir := directory.New(svc, logging.NewNop(), directory.WithPageSize(10))
	ctx := context.Background()

	if _, _, err := dir.FetchItemsPage(ctx, "q1"); err != nil {
		t.Fatalf("FetchItemsPage(q1) error = %v", err)
	}
	items, _, err := dir.FetchItemsPage(ctx, "q2")
	if err != nil {
		t.Fatalf("FetchItemsPage(q2) error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "b1" {
		t.Fatalf("q2 page = %+v, want only b1", items)
	}

	if _, ok := dir.Items("q1"); ok {
		t.Fatal("q1 pages should be discarded after selecting q2")
	}
}

func TestItemByID(t *testing.T) {
	svc := newFakeQueueService()
	svc.addQueue(queueFixture("q1", 1))
	svc.items["q1"] = []review.WorkItem{itemFixture("i1")}

	dir := directory.New(svc, logging.NewNop())
	if _, _, err := dir.FetchItemsPage(context.Background(), "q1"); err != nil {
		t.Fatalf("FetchItemsPage() error = %v", err)
	}

	if item, ok := dir.ItemByID("i1"); !ok || item.ID != "i1" {
		t.Fatalf("ItemByID(i1) = (%+v, %v)", item, ok)
	}
	if _, ok := dir.ItemByID("missing"); ok {
		t.Fatal("ItemByID(missing) should not resolve")
	}
}

func TestResetItemsForcesRefetch(t *testing.T) {
	svc := newFakeQueueService()
	svc.addQueue(queueFixture("q1", 1))
	svc.items["q1"] = []review.WorkItem{itemFixture("i1")}

	dir := directory.New(svc, logging.NewNop())
	ctx := context.Background()
	if _, _, err := dir.FetchItemsPage(ctx, "q1"); err != nil {
		t.Fatalf("FetchItemsPage() error = %v", err)
	}

	svc.mu.Lock()
	svc.items["q1"] = []review.WorkItem{itemFixture("i1"), itemFixture("i2")}
	svc.mu.Unlock()
	dir.ResetItems()

	items, _, err := dir.FetchItemsPage(ctx, "q1")
	if err != nil {
		t.Fatalf("FetchItemsPage() after reset error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items after reset = %d, want 2", len(items))
	}
}
