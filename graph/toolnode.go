package graph

import (
	"context"

	"github.com/dshills/workflow-go/graph/tool"
)

// InputFunc builds a tool's call arguments from the current state.
type InputFunc func(state State) map[string]interface{}

// ToolNode is a NodeTool implementation that invokes a tool.Tool
// with arguments derived from state and writes its result map under a
// single output channel.
type ToolNode struct {
	Tool      tool.Tool
	Input     InputFunc
	OutputKey string
	NodeID    string
}

func (n *ToolNode) Run(ctx context.Context, state State) NodeResult {
	var args map[string]interface{}
	if n.Input != nil {
		args = n.Input(state)
	}

	out, err := n.Tool.Call(ctx, args)
	if err != nil {
		return NodeResult{Err: &NodeError{Kind: KindTransient, NodeID: n.NodeID, Message: "tool call failed", Cause: err}}
	}

	key := n.OutputKey
	if key == "" {
		key = n.Tool.Name()
	}
	return NodeResult{Fragment: State{key: out}}
}
