package backend

import (
	"time"

	"triage/internal/review"
)

type queuePayload struct {
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

type itemPayload struct {
	ID                  string   `json:"id"`
	Status              string   `json:"status"`
	LockedBy            string   `json:"locked_by"`
	LockedOnQueueViewID string   `json:"locked_on_queue_view_id"`
	Active              bool     `json:"active"`
	Notes               string   `json:"notes"`
	Tags                []string `json:"tags"`
}

type lockPayload struct {
	ItemID  string `json:"item_id"`
	OwnerID string `json:"owner_id"`
	QueueID string `json:"queue_id"`
}

type itemsPagePayload struct {
	Items      []itemPayload `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

type labelRequest struct {
	Label string `json:"label"`
	Notes string `json:"notes,omitempty"`
}

type conflictPayload struct {
	ItemID   string `json:"item_id"`
	LockedBy string `json:"locked_by"`
	QueueID  string `json:"queue_id"`
}

type errorPayload struct {
	Message  string           `json:"message"`
	Conflict *conflictPayload `json:"conflict,omitempty"`
}

func convertQueue(p queuePayload) review.Queue {
	labels := make([]review.Label, 0, len(p.AllowedLabels))
	for _, raw := range p.AllowedLabels {
		if label, ok := review.ParseLabel(raw); ok {
			labels = append(labels, label)
		}
	}
	return review.Queue{
		ID:                 p.ID,
		ViewID:             p.ViewID,
		Name:               p.Name,
		SortingLocked:      p.SortingLocked,
		AllowedLabels:      labels,
		Supervisors:        append([]string(nil), p.Supervisors...),
		Reviewers:          append([]string(nil), p.Reviewers...),
		ProcessingDeadline: time.Duration(p.ProcessingDeadlineS) * time.Second,
		Size:               p.Size,
		ForEscalations:     p.ForEscalations,
	}
}

func convertItem(p itemPayload) review.WorkItem {
	status, ok := review.ParseItemStatus(p.Status)
	if !ok {
		status = review.StatusAwaiting
	}
	return review.WorkItem{
		ID:                  p.ID,
		Status:              status,
		LockedBy:            p.LockedBy,
		LockedOnQueueViewID: p.LockedOnQueueViewID,
		Active:              p.Active,
		Notes:               p.Notes,
		Tags:                append([]string(nil), p.Tags...),
	}
}

func convertLock(p lockPayload) review.Lock {
	return review.Lock{ItemID: p.ItemID, OwnerID: p.OwnerID, QueueID: p.QueueID}
}
