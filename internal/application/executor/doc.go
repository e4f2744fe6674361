// Package executor runs one PendingWork item: a node's processing capability
// applied to one input bundle, or the node's end-of-input flush.
//
// Outputs are buffered per attempt and only returned on success. Errors are
// classified as retryable or fatal; retryable errors are retried with
// exponential backoff up to the node's retry bound. The input bundle is never
// modified.
package executor
