// Package refresh keeps cached views of server state fresh without a
// thundering herd.
//
// One scheduler serves one screen. The tick interval is short and
// constant; each registered target carries its own, much longer,
// staleness bound and only refreshes once that bound elapses. Stopping
// the scheduler cancels the timer outright so no tick can mutate state
// for a torn-down screen.
package refresh
