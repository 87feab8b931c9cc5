// Package vthreads provides a small structured-concurrency runtime for
// handling many short-lived units of work, such as network connections
// or bulk computational tasks, on cheap goroutine-backed execution units
// rather than one OS thread per unit.
//
// Key components:
//
//   - Pool: an execution unit pool. Go spawns a unit, Unit.Join waits
//     for one, JoinAll waits for many, and Close is a barrier that
//     blocks until every accepted unit has finished. A pool may be
//     bounded, in which case units beyond the bound wait for a slot
//     without blocking the submitter.
//
//   - Unit: the handle of a spawned procedure. A unit transitions from
//     running to completed, failed or cancelled exactly once. Panics are
//     recovered and reported as failures.
//
//   - Rendezvous: a single-permit handoff, used to sequence "ready"
//     before "proceed" between two units.
//
//   - ShutdownLatch: a one-shot, single-writer-wins gate used to
//     terminate a polling loop.
//
// Blocking operations (Unit.Join, Rendezvous.Acquire, ShutdownLatch.Wait)
// take a context. When the context is done they return an
// InterruptedError, which wraps both ErrInterrupted and the context
// cause, so the interruption is never silently absorbed.
//
// Logging is injected: every component accepts a *Logger, and a nil
// logger is valid and silent.
//
// See the fiber package for cooperative units multiplexed on a single
// carrier goroutine.
package vthreads
