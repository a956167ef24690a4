// Package services defines the error taxonomy shared by every
// component that talks to the review backend.
//
// Errors are tagged with sentinel markers (not found, lock conflict,
// permission denied, validation, transient) so callers can classify a
// failure with errors.Is without inspecting transport details. The
// backend client maps HTTP responses onto these markers; local
// pre-flight rejections use the same markers so the UI handles both
// uniformly.
package services
