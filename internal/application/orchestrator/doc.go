// Package orchestrator implements the pipeline executor for graph runs.
//
// The scheduler coordinates a run by:
//   - Validating the root set against the graph
//   - Seeding pending work from the root nodes' initial bundles
//   - Dispatching work to the worker pool and committing the results
//   - Scheduling downstream work as bundles commit and watermarks advance
//   - Detecting the terminal state and releasing every AwaitCompletion caller
//
// The validator ensures the nodes reachable from the root set form a closed,
// acyclic run.
package orchestrator
