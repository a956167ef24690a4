// Package taskrunner provides a minimal FIFO executor for multi-step
// start-up and session operations that must run one at a time, in
// order, with short-circuit on failure.
package taskrunner
