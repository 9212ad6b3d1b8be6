// Package graph provides the core graph execution engine for workflow-go.
package graph

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum.
// allowed step count without completing. This prevents infinite loops and.
// runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrBackpressure indicates that downstream processing cannot keep up with.
// the current execution rate.
var ErrBackpressure = errors.New("downstream backpressure exceeded threshold")

// ErrInvalidGraph is returned by Compile when the builder's graph fails
// structural validation: missing sentinels, unreachable entry, an edge
// referencing a non-existent node, or a conditional group missing a
// fallback when no branch is statically guaranteed to match.
var ErrInvalidGraph = errors.New("invalid graph")

// ErrCyclesDetected is returned by the Dependency Analyzer's levelization
// pass when the total number of nodes assigned to levels does not match
// the number of nodes reachable from __start__ — i.e. a cycle that isn't
// broken by conditional routing prevents a stable level assignment.
var ErrCyclesDetected = errors.New("cycles detected: graph cannot be levelized")

// ErrDeadlockDetected is returned by the parallel scheduler's periodic
// waiting-for cycle check. DeadlockError carries the participating node ids.
var ErrDeadlockDetected = errors.New("deadlock detected")

// ErrCircuitOpen is returned by the resilience manager when a call is
// rejected because the circuit breaker for its dependency tag is Open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrBulkheadRejected is returned when the bulkhead's wait queue is full
// and a new acquisition cannot be admitted.
var ErrBulkheadRejected = errors.New("bulkhead rejected: queue full")

// ErrCheckpointNotFound is returned when no checkpoint exists for the
// requested (thread, checkpoint-id), for example by a Checkpointer's Delete
// and by Engine.Resume. A Checkpointer's Load reports a miss as found=false
// with a nil error instead.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrInterruptAborted is returned when a pending interrupt is resolved
// with an Abort decision.
var ErrInterruptAborted = errors.New("interrupt aborted")

// ErrHandleNotFound is returned when approving, modifying, or inspecting
// an interrupt handle id that is not (or is no longer) pending.
var ErrHandleNotFound = errors.New("interrupt handle not found")

// ErrSnapshotNotFound is returned when resuming from an unknown snapshot id.
var ErrSnapshotNotFound = errors.New("workflow snapshot not found")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when
// MaxAttempts < 1 or MaxDelay is set below BaseDelay.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrorKind classifies a node-level error for the resilience manager and
// the scheduler's propagation policy.
type ErrorKind int

const (
	// KindTransient is network-class/timeout-class: retry-eligible, counts
	// toward the circuit breaker's failure window.
	KindTransient ErrorKind = iota
	// KindRecoverable carries its own RetryAfter and is retried honoring it.
	KindRecoverable
	// KindPermanent is non-retryable (e.g. validation); the failing node is
	// recorded but its peers in the level are allowed to finish.
	KindPermanent
	// KindFatal is an internal invariant violation: it aborts the whole
	// level and triggers a rollback to the run's initial snapshot (V0).
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRecoverable:
		return "recoverable"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// NodeError represents an error that occurred during node execution.
// It provides structured error information for better observability and
// debugging, and carries the ErrorKind the resilience manager and scheduler
// use to decide retry/rollback behavior.
type NodeError struct {
	// Kind classifies this error for retry/rollback policy.
	Kind ErrorKind

	// Message is the human-readable error description.
	Message string

	// NodeID identifies which node produced this error.
	NodeID string

	// RetryAfter is set only for KindRecoverable errors.
	RetryAfter time.Duration

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %s: %s (%s)", e.NodeID, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the resilience manager's retry wrapper should
// attempt this error again (Transient and Recoverable only).
func (e *NodeError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRecoverable
}

// EngineError is a structured error surfaced by the Engine's public API
// (Compile/AddNode/AddEdge/Invoke-family validation), distinct from
// NodeError which is produced by node implementations themselves.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Cause }

// DeadlockError is returned when the scheduler's cycle detector finds a
// cycle in the waiting-for graph; it names the participating node ids.
type DeadlockError struct {
	NodeIDs []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("%v: nodes %v", ErrDeadlockDetected, e.NodeIDs)
}

func (e *DeadlockError) Unwrap() error {
	return ErrDeadlockDetected
}
