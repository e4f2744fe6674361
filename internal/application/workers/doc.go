// Package workers implements the bounded worker pool that executes pending work.
//
// The pool manages a fixed number of goroutines that:
//   - Draw PendingWork items from a shared bounded queue in FIFO order
//   - Run each item to completion before taking the next one
//   - Hand every item to the scheduler's handler, which executes and commits it
//
// Submitting to a full queue blocks, which is the engine's backpressure; a
// submit that outlasts the configured deadline fails with a
// BackpressureTimeoutError. The health monitor tracks worker status and
// records metrics.
package workers
