// Package directory caches the server's queue catalog and the item
// pages of the currently selected queue.
//
// Fetch operations replace or append cache state only after the remote
// call has resolved; lookups (QueueByID, ItemByID, Items) are pure and
// never touch the network. RefreshOne updates a single queue in place
// so polling refreshes do not disturb the rest of a rendered view, and
// falls back to a historical resolver for archived queues.
package directory
