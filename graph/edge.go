// Package graph provides the core graph execution engine for workflow-go.
package graph

// EdgeType enumerates the kinds of control-flow connections between nodes.
type EdgeType int

const (
	// EdgeDirect is always taken.
	EdgeDirect EdgeType = iota
	// EdgeConditional is taken when Predicate(state) is true; otherwise
	// the Fallback target is taken if set.
	EdgeConditional
	// EdgeParallel marks a fan-out group: the scheduler dispatches every
	// outgoing EdgeParallel target concurrently.
	EdgeParallel
)

// Edge represents a connection between two nodes in the workflow graph.
type Edge struct {
	From string
	To   string
	Type EdgeType

	// Condition is the raw DSL string for EdgeConditional edges; When is
	// its compiled form.
	Condition string
	When      Predicate

	// Fallback is the target taken when an EdgeConditional's Condition is
	// false and no other conditional branch from the same node matches.
	Fallback string

	// Priority breaks ties when a node has multiple matching EdgeConditional
	// targets in the same evaluation (higher wins).
	Priority int
}
