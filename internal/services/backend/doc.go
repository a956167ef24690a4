// Package backend wraps the remote queue/item data service and lock
// data service behind one HTTP client.
//
// The client owns transport concerns only: request construction,
// correlation ids, response decoding, and mapping HTTP failures onto
// the services error taxonomy (not found, lock conflict, permission
// denied, validation, transient). It holds no state beyond the
// http.Client; callers own caching and reconciliation.
package backend
