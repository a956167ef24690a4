// Package review defines the shared domain model for the review
// coordination core: queues, work items, locks, decision labels, and
// the status vocabulary used across the directory, lock registry,
// permission evaluator, and session coordinator.
//
// The types here are plain data. Server-authoritative fields (lock
// ownership, queue size) are written only by the components that fetch
// them; everything else treats values as read-only snapshots.
package review
