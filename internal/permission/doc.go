// Package permission holds the pure pre-flight checks that gate
// review sessions.
//
// Both evaluators are side-effect-free functions of their inputs and
// are recomputed on every relevant cache change rather than cached.
// They centralize the single-active-lock invariant: a reviewer holding
// any lock is denied a new session and pointed at the item they
// already hold.
package permission
