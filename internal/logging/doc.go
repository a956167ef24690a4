// Package logging assembles the structured slog loggers used across
// the triage console.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attr helpers plus standardized field keys so
// every component tags lines with the same queue, item, and session
// identifiers. A no-op logger is provided for tests and wiring code
// that cannot fail.
package logging
