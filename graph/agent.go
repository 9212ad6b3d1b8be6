package graph

import (
	"context"

	"github.com/dshills/workflow-go/graph/model"
)

// PromptFunc builds the conversation an AgentNode sends to its ChatModel
// from the current state.
type PromptFunc func(state State) []model.Message

// AgentNode is a NodeAgent implementation that calls an LLM
// through the model.ChatModel abstraction, writing the response text into
// the OutputKey channel (and any tool calls into OutputKey+"_tool_calls")
// and, when a CostTracker is
// attached, recording token usage for cost accounting.
type AgentNode struct {
	Model       model.ChatModel
	Prompt      PromptFunc
	Tools       []model.ToolSpec
	OutputKey   string
	ModelName   string
	NodeID      string
	CostTracker *CostTracker
}

func (n *AgentNode) Run(ctx context.Context, state State) NodeResult {
	messages := n.Prompt(state)
	out, err := n.Model.Chat(ctx, messages, n.Tools)
	if err != nil {
		return NodeResult{Err: &NodeError{Kind: KindTransient, NodeID: n.NodeID, Message: "chat model call failed", Cause: err}}
	}

	key := n.OutputKey
	if key == "" {
		key = "response"
	}

	fragment := State{key: out.Text}
	if len(out.ToolCalls) > 0 {
		fragment[key+"_tool_calls"] = out.ToolCalls
	}

	if n.CostTracker != nil && n.ModelName != "" {
		inputTokens := estimateTokens(messages)
		outputTokens := estimateTokenCount(out.Text)
		if err := n.CostTracker.RecordLLMCall(n.ModelName, inputTokens, outputTokens, n.NodeID); err != nil {
			return NodeResult{Err: &NodeError{Kind: KindRecoverable, NodeID: n.NodeID, Message: "cost tracking failed", Cause: err}}
		}
	}

	return NodeResult{Fragment: fragment}
}

// estimateTokens approximates input token count from message content
// length (roughly 4 characters per token), since providers differ on
// exact tokenizers and the cost tracker only needs an order-of-magnitude
// figure for non-billing observability.
func estimateTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokenCount(m.Content)
	}
	return total
}

func estimateTokenCount(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}
