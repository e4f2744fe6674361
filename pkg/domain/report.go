package domain

import "time"

// RunState is the scheduler state machine.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// IsTerminal reports whether the state is Completed or Failed.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// FailureSummary is the serializable form of a Failure.
type FailureSummary struct {
	Kind     FailureKind `json:"kind"`
	Node     NodeID      `json:"node"`
	BundleID string      `json:"bundle_id,omitempty"`
	Attempts int         `json:"attempts,omitempty"`
	Message  string      `json:"message"`
	At       time.Time   `json:"at"`
}

// Summarize converts a failure for reporting.
func (f *Failure) Summarize() FailureSummary {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return FailureSummary{
		Kind:     f.Kind,
		Node:     f.Node,
		BundleID: f.BundleID,
		Attempts: f.Attempts,
		Message:  msg,
		At:       f.At,
	}
}

// CollectionStats counts what was committed to a collection.
type CollectionStats struct {
	Bundles  int `json:"bundles"`
	Elements int `json:"elements"`
}

// RunReport describes a finished run.
type RunReport struct {
	RunID       string                           `json:"run_id"`
	State       RunState                         `json:"state"`
	StartedAt   time.Time                        `json:"started_at"`
	CompletedAt time.Time                        `json:"completed_at"`
	Watermarks  map[NodeID]string                `json:"watermarks"`
	Collections map[CollectionID]CollectionStats `json:"collections"`
	Failure     *FailureSummary                  `json:"failure,omitempty"`
	Diagnostics []FailureSummary                 `json:"diagnostics,omitempty"`
}

// Duration is the wall-clock length of the run.
func (r *RunReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
