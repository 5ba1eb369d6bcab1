// Package timers provides cancellable timer tokens grouped per owner.
//
// Each long-lived component (connection manager, orchestrator) owns one
// Scheduler. Every delay it arms (connect timeout, settle delay, liveness
// poll, health-check timeout) is a Token registered with that scheduler,
// so teardown is a single CancelAll call instead of tracking several
// independent handles.
//
// A callback never starts after its token was cancelled. A callback that
// is already running when Cancel is called is allowed to finish.
package timers
