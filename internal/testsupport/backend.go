package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"triage/internal/review"
)

// Backend is an in-memory review backend served over httptest. It
// implements the wire shapes the backend client expects and enforces
// server-side lock semantics: one authoritative lock per item,
// conflicts reported with owner and queue.
type Backend struct {
	// UserID is the reviewer all lock-acquiring requests act as.
	UserID string

	mu     sync.Mutex
	queues map[string]*review.Queue
	order  []string
	items  map[string][]*review.WorkItem
	locks  map[string]review.Lock

	server *httptest.Server
}

// NewBackend starts a fake backend and registers cleanup.
func NewBackend(t testing.TB, userID string) *Backend {
	t.Helper()
	b := &Backend{
		UserID: userID,
		queues: make(map[string]*review.Queue),
		items:  make(map[string][]*review.WorkItem),
		locks:  make(map[string]review.Lock),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/queues", b.handleListQueues)
	mux.HandleFunc("GET /api/queues/{id}", b.handleGetQueue)
	mux.HandleFunc("GET /api/queues/{id}/items", b.handleListItems)
	mux.HandleFunc("POST /api/queues/{id}/next", b.handleNext)
	mux.HandleFunc("POST /api/queues/{id}/items/{item}/claim", b.handleClaim)
	mux.HandleFunc("POST /api/items/{id}/label", b.handleLabel)
	mux.HandleFunc("GET /api/locks", b.handleListLocks)
	mux.HandleFunc("DELETE /api/locks/{id}", b.handleRelease)

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the base URL of the fake backend.
func (b *Backend) URL() string {
	return b.server.URL
}

// AddQueue registers a queue.
func (b *Backend) AddQueue(queue review.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := queue
	b.queues[queue.ID] = &cp
	b.order = append(b.order, queue.ID)
}

// AddItem appends an item to a queue.
func (b *Backend) AddItem(queueID string, item review.WorkItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := item
	b.items[queueID] = append(b.items[queueID], &cp)
}

// LockItem installs a server-side lock, simulating another reviewer.
func (b *Backend) LockItem(queueID, itemID, ownerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locks[itemID] = review.Lock{ItemID: itemID, OwnerID: ownerID, QueueID: queueID}
	for _, item := range b.items[queueID] {
		if item.ID == itemID {
			item.LockedBy = ownerID
			item.LockedOnQueueViewID = queueID
		}
	}
}

// LockOwner reports the current lock owner for an item, if any.
func (b *Backend) LockOwner(itemID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[itemID]
	return lock.OwnerID, ok
}

// ItemStatus reports the stored status of an item.
func (b *Backend) ItemStatus(queueID, itemID string) (review.ItemStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range b.items[queueID] {
		if item.ID == itemID {
			return item.Status, true
		}
	}
	return "", false
}

type wireQueue struct {
	ID                  string   `json:"id"`
	ViewID              string   `json:"view_id"`
	Name                string   `json:"name"`
	SortingLocked       bool     `json:"sorting_locked"`
	AllowedLabels       []string `json:"allowed_labels"`
	Supervisors         []string `json:"supervisors"`
	Reviewers           []string `json:"reviewers"`
	ProcessingDeadlineS int      `json:"processing_deadline_seconds"`
	Size                int      `json:"size"`
	ForEscalations      bool     `json:"for_escalations"`
}

type wireItem struct {
	ID                  string   `json:"id"`
	Status              string   `json:"status"`
	LockedBy            string   `json:"locked_by"`
	LockedOnQueueViewID string   `json:"locked_on_queue_view_id"`
	Active              bool     `json:"active"`
	Notes               string   `json:"notes"`
	Tags                []string `json:"tags"`
}

type wireLock struct {
	ItemID  string `json:"item_id"`
	OwnerID string `json:"owner_id"`
	QueueID string `json:"queue_id"`
}

type wireError struct {
	Message  string        `json:"message"`
	Conflict *wireConflict `json:"conflict,omitempty"`
}

type wireConflict struct {
	ItemID   string `json:"item_id"`
	LockedBy string `json:"locked_by"`
	QueueID  string `json:"queue_id"`
}

func encodeQueue(q review.Queue) wireQueue {
	labels := make([]string, 0, len(q.AllowedLabels))
	for _, label := range q.AllowedLabels {
		labels = append(labels, string(label))
	}
	return wireQueue{
		ID:                  q.ID,
		ViewID:              q.ViewID,
		Name:                q.Name,
		SortingLocked:       q.SortingLocked,
		AllowedLabels:       labels,
		Supervisors:         q.Supervisors,
		Reviewers:           q.Reviewers,
		ProcessingDeadlineS: int(q.ProcessingDeadline.Seconds()),
		Size:                q.Size,
		ForEscalations:      q.ForEscalations,
	}
}

func encodeItem(i review.WorkItem) wireItem {
	return wireItem{
		ID:                  i.ID,
		Status:              string(i.Status),
		LockedBy:            i.LockedBy,
		LockedOnQueueViewID: i.LockedOnQueueViewID,
		Active:              i.Active,
		Notes:               i.Notes,
		Tags:                i.Tags,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeConflict(w http.ResponseWriter, lock review.Lock) {
	writeJSON(w, http.StatusConflict, wireError{
		Message: "item already locked",
		Conflict: &wireConflict{
			ItemID:   lock.ItemID,
			LockedBy: lock.OwnerID,
			QueueID:  lock.QueueID,
		},
	})
}

func (b *Backend) handleListQueues(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wireQueue, 0, len(b.order))
	for _, id := range b.order {
		queue := b.queues[id]
		if view != "" && string(queue.View()) != view {
			continue
		}
		out = append(out, encodeQueue(*queue))
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue, ok := b.queues[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Message: "queue not found"})
		return
	}
	writeJSON(w, http.StatusOK, encodeQueue(*queue))
}

func (b *Backend) handleListItems(w http.ResponseWriter, r *http.Request) {
	queueID := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[queueID]; !ok {
		writeJSON(w, http.StatusNotFound, wireError{Message: "queue not found"})
		return
	}

	items := b.items[queueID]
	offset := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	limit := len(items)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	if offset > len(items) {
		offset = len(items)
	}
	page := make([]wireItem, 0, end-offset)
	for _, item := range items[offset:end] {
		page = append(page, encodeItem(*item))
	}
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": page, "next_cursor": next})
}

func (b *Backend) handleNext(w http.ResponseWriter, r *http.Request) {
	queueID := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[queueID]; !ok {
		writeJSON(w, http.StatusNotFound, wireError{Message: "queue not found"})
		return
	}

	for _, item := range b.items[queueID] {
		if !item.Active || item.Status != review.StatusAwaiting {
			continue
		}
		if lock, locked := b.locks[item.ID]; locked {
			if lock.OwnerID == b.UserID {
				writeJSON(w, http.StatusOK, encodeItem(*item))
				return
			}
			// Strict order: the head is taken, so the caller conflicts
			// instead of skipping ahead.
			writeConflict(w, lock)
			return
		}
		b.lockLocked(queueID, item)
		writeJSON(w, http.StatusOK, encodeItem(*item))
		return
	}
	writeJSON(w, http.StatusNotFound, wireError{Message: "no reviewable items"})
}

func (b *Backend) handleClaim(w http.ResponseWriter, r *http.Request) {
	queueID := r.PathValue("id")
	itemID := r.PathValue("item")
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range b.items[queueID] {
		if item.ID != itemID {
			continue
		}
		if !item.Active {
			writeJSON(w, http.StatusNotFound, wireError{Message: "item no longer active"})
			return
		}
		if lock, locked := b.locks[item.ID]; locked && lock.OwnerID != b.UserID {
			writeConflict(w, lock)
			return
		}
		b.lockLocked(queueID, item)
		writeJSON(w, http.StatusOK, encodeItem(*item))
		return
	}
	writeJSON(w, http.StatusNotFound, wireError{Message: "item not found"})
}

func (b *Backend) handleLabel(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	var body struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Message: "bad request"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for queueID, items := range b.items {
		for _, item := range items {
			if item.ID != itemID {
				continue
			}
			if lock, locked := b.locks[itemID]; locked && lock.OwnerID != b.UserID {
				writeConflict(w, lock)
				return
			}
			switch review.Label(body.Label) {
			case review.LabelGood:
				item.Status = review.StatusGood
			case review.LabelBad:
				item.Status = review.StatusBad
			case review.LabelEscalate:
				item.Status = review.StatusEscalated
			case review.LabelHold:
				item.Status = review.StatusOnHold
				// Hold keeps the lock.
				b.lockLocked(queueID, item)
				writeJSON(w, http.StatusOK, map[string]any{})
				return
			default:
				writeJSON(w, http.StatusUnprocessableEntity, wireError{Message: "unknown label"})
				return
			}
			delete(b.locks, itemID)
			item.LockedBy = ""
			item.LockedOnQueueViewID = ""
			if queue := b.queues[queueID]; queue != nil && queue.Size > 0 {
				queue.Size--
			}
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, wireError{Message: "item not found"})
}

func (b *Backend) handleListLocks(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wireLock, 0, len(b.locks))
	for _, lock := range b.locks {
		if lock.OwnerID != b.UserID {
			continue
		}
		out = append(out, wireLock{ItemID: lock.ItemID, OwnerID: lock.OwnerID, QueueID: lock.QueueID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleRelease(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if lock, ok := b.locks[itemID]; ok && lock.OwnerID == b.UserID {
		delete(b.locks, itemID)
		for _, items := range b.items {
			for _, item := range items {
				if item.ID == itemID {
					item.LockedBy = ""
					item.LockedOnQueueViewID = ""
				}
			}
		}
	}
	// Idempotent: releasing an absent lock succeeds.
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) lockLocked(queueID string, item *review.WorkItem) {
	b.locks[item.ID] = review.Lock{ItemID: item.ID, OwnerID: b.UserID, QueueID: queueID}
	item.LockedBy = b.UserID
	item.LockedOnQueueViewID = queueID
}
