// Package domain defines the data model shared by every part of the engine.
//
// The model covers:
//   - Graph: immutable transform nodes connected by named collections
//   - Bundles: immutable batches of timestamped elements, committed or not
//   - Instants: event time, including the end-of-time sentinel used for watermarks
//   - PendingWork and Failure: the units the scheduler dispatches and the errors it captures
//   - Events and RunReport: what the engine exposes to observers once a run ends
//
// Nothing in this package blocks or starts goroutines.
package domain
