package domain

import "time"

// PendingWork is a unit scheduled for execution: one node applied to one
// input bundle, or the node's end-of-input flush when Bundle is nil.
type PendingWork struct {
	Node       NodeID
	Bundle     *CommittedBundle
	EnqueuedAt time.Time
}

// WorkKey identifies a PendingWork value. At most one execution per key is in flight.
type WorkKey struct {
	Node   NodeID
	Bundle string
}

// FlushBundleID is the key component used for flush work.
const FlushBundleID = "flush"

// Key returns the work's identity.
func (w *PendingWork) Key() WorkKey {
	if w.Bundle == nil {
		return WorkKey{Node: w.Node, Bundle: FlushBundleID}
	}
	return WorkKey{Node: w.Node, Bundle: w.Bundle.ID()}
}

// IsFlush reports whether the work is the node's end-of-input flush.
func (w *PendingWork) IsFlush() bool {
	return w.Bundle == nil
}

// BundleID returns the input bundle ID, or empty for flush work.
func (w *PendingWork) BundleID() string {
	if w.Bundle == nil {
		return ""
	}
	return w.Bundle.ID()
}

func (k WorkKey) String() string {
	return string(k.Node) + "/" + k.Bundle
}
