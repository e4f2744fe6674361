// Package watermarks tracks per-node progress for a run.
//
// Each node's output watermark is the minimum of its upstream output
// watermarks and the holds contributed by its uncommitted input bundles.
// State is guarded per node so that unrelated nodes never contend, and
// watermarks are recomputed from current hold state on every change, so
// bundles may commit in any order.
package watermarks
