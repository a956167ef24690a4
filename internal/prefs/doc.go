// Package prefs persists per-screen UI preferences, currently the
// auto-refresh toggle, in a SQLite database under the state directory.
// The directory is guarded with a file lock so only one console
// process owns it at a time.
package prefs
