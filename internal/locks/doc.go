// Package locks maintains the client-side view of item locks held by
// the current reviewer.
//
// The registry is a cache, never an authority: it refreshes from the
// lock service after any operation that could change ownership and
// hands out copy-on-read snapshots so concurrent readers never observe
// a partially updated set.
package locks
