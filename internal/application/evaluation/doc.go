// Package evaluation implements the coordination state shared by the
// scheduler and the transform executor for one run:
//   - the append-only registry of committed bundles per collection
//   - pending-work accounting and the in-flight set that keeps every
//     PendingWork value to a single execution
//   - capture of the first failure, with later failures kept for diagnostics
//   - commit, which publishes outputs downstream before releasing the
//     producer's hold and advancing watermarks
//   - completion detection
package evaluation
