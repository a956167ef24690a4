// Package session implements the review session coordinator: the
// explicit state machine that takes a reviewer from requesting an
// item, through holding its lock, to a labeling decision or a manual
// release.
//
// Phases move Idle -> Requesting -> Locked -> {Labeling -> Idle,
// Held <-> Locked, Conflict}. Every remote call is epoch-stamped so a
// response arriving after the reviewer abandoned the session is
// discarded instead of resurrecting it. Permission failures are
// rejected locally before any network call; conflicts reported by the
// server surface the owning reviewer so the UI can redirect rather
// than retry or steal.
package session
