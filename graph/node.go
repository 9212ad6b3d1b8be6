package graph

import "context"

// NodeType tags the role a node plays in the graph. The
// scheduler dispatches on this tag: Start/End are identity passes,
// Conditional/Parallel own no mutation and only steer the scheduler,
// Subgraph recurses into a named sub-graph, and Agent/Tool/Custom look up
// a named implementation from the execution context's registry.
type NodeType int

const (
	NodeStart NodeType = iota
	NodeEnd
	NodeAgent
	NodeTool
	NodeConditional
	NodeParallel
	NodeSubgraph
	NodeCustom
)

func (t NodeType) String() string {
	switch t {
	case NodeStart:
		return "Start"
	case NodeEnd:
		return "End"
	case NodeAgent:
		return "Agent"
	case NodeTool:
		return "Tool"
	case NodeConditional:
		return "Conditional"
	case NodeParallel:
		return "Parallel"
	case NodeSubgraph:
		return "Subgraph"
	case NodeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// StartSentinel and EndSentinel are the two required node ids every
// compiled graph must contain.
const (
	StartSentinel = "__start__"
	EndSentinel   = "__end__"
)

// Node is a processing unit in the workflow graph. It receives a snapshot
// of the dynamically-typed State, performs computation, and returns a
// NodeResult carrying a state fragment to be merged under channel reducers.
//
// Implementations must be safe to invoke concurrently on distinct state
// snapshots.
type Node interface {
	Run(ctx context.Context, state State) NodeResult
}

// NodeResult is the output of a node execution.
type NodeResult struct {
	// Fragment is the partial state update produced by this node. It is
	// merged into the shared state by the scheduler, one key at a time,
	// through each key's declared channel reducer.
	Fragment State

	// Route, when non-nil, overrides edge-based routing for this step.
	Route *Next

	// Err is a node-level error. Its Kind (see NodeError) determines how
	// the scheduler and resilience manager react.
	Err error
}

// Next specifies the next step(s) in workflow execution after a node
// completes, overriding edge-based routing.
type Next struct {
	To       string
	Many     []string
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next { return Next{Terminal: true} }

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next { return Next{To: nodeID} }

// GotoMany returns a Next that fans out to multiple nodes.
func GotoMany(nodeIDs ...string) Next { return Next{Many: nodeIDs} }

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, state State) NodeResult

// Run implements Node for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, state State) NodeResult { return f(ctx, state) }

// IdentityNode is used for the Start/End sentinels: it passes state
// through unchanged.
var IdentityNode Node = NodeFunc(func(_ context.Context, state State) NodeResult {
	return NodeResult{Fragment: State{}}
})
