// Package fiber provides cooperative execution units multiplexed onto a
// single carrier goroutine, with batched I/O.
//
// Key components:
//
//   - Fiber: a coroutine-backed unit of work. Fibers can spawn child
//     fibers, submit I/O, and wait for their children. A fiber never
//     finishes before its children have.
//
//   - Carrier: drives a tree of fibers to completion. Whenever every
//     runnable fiber has parked on I/O, the carrier hands the pending
//     inputs to its Flusher in batches and resumes each fiber with its
//     result.
//
//   - Flusher: performs a batch of I/O on behalf of the parked fibers.
//
//   - Synchronization primitives: WaitGroup and Group, which park the
//     calling fiber rather than blocking the carrier.
//
// All fibers of one Carrier.Run call execute one at a time, so state
// shared only between those fibers needs no locking.
package fiber
