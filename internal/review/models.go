package review

import (
	"strings"
	"time"
)

// ItemStatus represents the lifecycle of a work item.
type ItemStatus string

const (
	StatusAwaiting  ItemStatus = "awaiting"
	StatusGood      ItemStatus = "good"
	StatusBad       ItemStatus = "bad"
	StatusEscalated ItemStatus = "escalated"
	StatusOnHold    ItemStatus = "on_hold"
)

var allItemStatuses = []ItemStatus{
	StatusAwaiting,
	StatusGood,
	StatusBad,
	StatusEscalated,
	StatusOnHold,
}

var itemStatusSet = func() map[ItemStatus]struct{} {
	set := make(map[ItemStatus]struct{}, len(allItemStatuses))
	for _, status := range allItemStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllItemStatuses returns the ordered list of known item statuses.
func AllItemStatuses() []ItemStatus {
	cp := make([]ItemStatus, len(allItemStatuses))
	copy(cp, allItemStatuses)
	return cp
}

// ParseItemStatus converts a string into a known ItemStatus.
func ParseItemStatus(value string) (ItemStatus, bool) {
	normalized := ItemStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := itemStatusSet[normalized]
	return normalized, ok
}

// Label is a decision a reviewer can apply to a locked item.
type Label string

const (
	LabelGood     Label = "good"
	LabelBad      Label = "bad"
	LabelEscalate Label = "escalate"
	LabelHold     Label = "hold"
)

// IsHold reports whether applying the label parks the item instead of
// completing the session.
func (l Label) IsHold() bool {
	return l == LabelHold
}

// ParseLabel normalizes a user-supplied label string.
func ParseLabel(value string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

// ViewType partitions queues into the regular and escalation views.
type ViewType string

const (
	ViewRegular    ViewType = "regular"
	ViewEscalation ViewType = "escalation"
)

// ParseViewType converts a string into a known ViewType.
func ParseViewType(value string) (ViewType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ViewRegular):
		return ViewRegular, true
	case string(ViewEscalation):
		return ViewEscalation, true
	default:
		return "", false
	}
}

// Queue describes a reviewable queue as reported by the backend.
// The coordinator treats every field except Size as immutable; Size
// decrements locally as items are labeled and is corrected on the next
// refresh.
type Queue struct {
	ID                 string
	ViewID             string
	Name               string
	SortingLocked      bool
	AllowedLabels      []Label
	Supervisors        []string
	Reviewers          []string
	ProcessingDeadline time.Duration
	Size               int
	ForEscalations     bool
}

// View returns the queue view this queue belongs to.
func (q Queue) View() ViewType {
	if q.ForEscalations {
		return ViewEscalation
	}
	return ViewRegular
}

// AllowsLabel reports whether label is an allowed decision for this
// queue. Hold is always permitted: it parks an item rather than
// deciding it.
func (q Queue) AllowsLabel(label Label) bool {
	if label.IsHold() {
		return true
	}
	for _, allowed := range q.AllowedLabels {
		if allowed == label {
			return true
		}
	}
	return false
}

// IsAssignee reports whether userID appears in the queue's reviewer or
// supervisor lists.
func (q Queue) IsAssignee(userID string) bool {
	for _, id := range q.Reviewers {
		if id == userID {
			return true
		}
	}
	for _, id := range q.Supervisors {
		if id == userID {
			return true
		}
	}
	return false
}

// WorkItem is a single reviewable case. Lock fields mirror the
// server's authoritative lock state at fetch time; empty LockedBy
// means unlocked.
type WorkItem struct {
	ID                  string
	Status              ItemStatus
	LockedBy            string
	LockedOnQueueViewID string
	Active              bool
	Notes               string
	Tags                []string
}

// Locked reports whether the item carried a lock when last fetched.
func (i WorkItem) Locked() bool {
	return i.LockedBy != ""
}

// LockedByOther reports whether the item is locked by someone other
// than userID.
func (i WorkItem) LockedByOther(userID string) bool {
	return i.LockedBy != "" && i.LockedBy != userID
}

// OnHold reports whether the item carries the hold status.
func (i WorkItem) OnHold() bool {
	return i.Status == StatusOnHold
}

// Lock is an exclusive claim on one work item, materialized
// client-side from the lock registry.
type Lock struct {
	ItemID  string
	OwnerID string
	QueueID string
}
