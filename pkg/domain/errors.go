package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState is returned when a scheduler operation is called out of state.
	ErrInvalidState = errors.New("invalid scheduler state")
	// ErrNotStarted is returned by AwaitCompletion before Start.
	ErrNotStarted = errors.New("run not started")
	// ErrCycle is returned when a graph is not acyclic.
	ErrCycle = errors.New("graph contains a cycle")
	// ErrUnknownNode is returned for node IDs absent from the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNotRoot is returned when a non-root node is used where a root is required.
	ErrNotRoot = errors.New("node is not a root")
	// ErrIncompleteRootSet is returned when a reachable node depends on a node outside the run.
	ErrIncompleteRootSet = errors.New("root set does not cover every upstream of the reachable nodes")
	// ErrTimestampBehindInput is returned when an element would be emitted before its input.
	ErrTimestampBehindInput = errors.New("output timestamp is earlier than the input allows")
	// ErrNoOutput is returned when emitting from a node without that output collection.
	ErrNoOutput = errors.New("node has no such output collection")
	// ErrSourceClosed is returned when feeding an unbounded root whose source reached end of time.
	ErrSourceClosed = errors.New("source is closed")
)

// FailureKind classifies a terminal failure.
type FailureKind string

const (
	FailureKindUser         FailureKind = "user_processing"
	FailureKindScheduling   FailureKind = "scheduling_invariant"
	FailureKindBackpressure FailureKind = "backpressure_timeout"
)

// SchedulingError reports an internal contradiction in the engine.
type SchedulingError struct {
	Node   NodeID
	Reason string
}

func (e *SchedulingError) Error() string {
	if e.Node == "" {
		return "scheduling invariant violated: " + e.Reason
	}
	return fmt.Sprintf("scheduling invariant violated at node %s: %s", e.Node, e.Reason)
}

// BackpressureTimeoutError reports that the pending-work queue stayed full
// longer than the configured deadline.
type BackpressureTimeoutError struct {
	Node    NodeID
	Timeout time.Duration
}

func (e *BackpressureTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s enqueuing work for node %s", e.Timeout, e.Node)
}

// PanicError carries a value recovered from a panicking processor.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.Value)
}

// Disposition is the classifier's verdict on an error.
type Disposition int

const (
	Fatal Disposition = iota
	Retry
)

// Classifier decides whether a processing error is retried.
type Classifier func(error) Disposition

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable for DefaultClassifier.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// DefaultClassifier retries errors marked Transient and treats everything
// else, including context errors and panics, as fatal.
func DefaultClassifier(err error) Disposition {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}
	if errors.Is(err, ErrTimestampBehindInput) || errors.Is(err, ErrNoOutput) {
		return Fatal
	}
	var p *PanicError
	if errors.As(err, &p) {
		return Fatal
	}
	if IsTransient(err) {
		return Retry
	}
	return Fatal
}

// Failure is a captured terminal error together with where it happened.
type Failure struct {
	Kind     FailureKind
	Node     NodeID
	BundleID string
	Attempts int
	Err      error
	At       time.Time
}

func (f *Failure) Error() string {
	if f.BundleID == "" {
		return fmt.Sprintf("%s failure at node %s: %v", f.Kind, f.Node, f.Err)
	}
	return fmt.Sprintf("%s failure at node %s (bundle %s): %v", f.Kind, f.Node, f.BundleID, f.Err)
}

// Unwrap returns the captured error.
func (f *Failure) Unwrap() error { return f.Err }

// KindOf maps an error to the failure kind it represents.
func KindOf(err error) FailureKind {
	var se *SchedulingError
	if errors.As(err, &se) {
		return FailureKindScheduling
	}
	var be *BackpressureTimeoutError
	if errors.As(err, &be) {
		return FailureKindBackpressure
	}
	return FailureKindUser
}
