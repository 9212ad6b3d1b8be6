package graph

import (
	"context"
	"fmt"
	"time"
)

// getNodeTimeout determines the timeout duration for a node based on
// precedence: NodePolicy.Timeout (per-node override), then defaultTimeout
// (engine-wide default), then 0 (unlimited).
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout wraps node execution with timeout enforcement.
// It determines the timeout based on precedence (NodePolicy >
// DefaultNodeTimeout), creates a timeout context if needed, executes the
// node, and converts a deadline-exceeded context into a Fatal NodeError
// (an unresponsive node is treated as an internal invariant violation,
// not a retryable condition the node itself reported).
func executeNodeWithTimeout(
	ctx context.Context,
	node Node,
	nodeID string,
	state State,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) NodeResult {
	timeout := getNodeTimeout(policy, defaultTimeout)

	if timeout == 0 {
		return node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		result.Err = &NodeError{
			Kind:    KindFatal,
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			NodeID:  nodeID,
		}
	}
	return result
}
