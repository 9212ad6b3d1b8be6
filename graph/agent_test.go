package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/workflow-go/graph/model"
)

func TestAgentNode_Run_Success(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hello there"}}}
	n := &AgentNode{
		Model: mock,
		Prompt: func(state State) []model.Message {
			return []model.Message{{Role: model.RoleUser, Content: state["query"].(string)}}
		},
		NodeID: "assistant",
	}

	result := n.Run(context.Background(), State{"query": "hi"})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Fragment["response"] != "hello there" {
		t.Errorf("expected default output key 'response', got %v", result.Fragment)
	}
	if len(mock.Calls) != 1 {
		t.Errorf("expected one recorded call, got %d", len(mock.Calls))
	}
}

func TestAgentNode_Run_CustomOutputKeyAndToolCalls(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{
		Text:      "using a tool",
		ToolCalls: []model.ToolCall{{Name: "search", Input: map[string]interface{}{"q": "x"}}},
	}}}
	n := &AgentNode{Model: mock, Prompt: func(State) []model.Message { return nil }, OutputKey: "answer"}

	result := n.Run(context.Background(), State{})
	if result.Fragment["answer"] != "using a tool" {
		t.Errorf("got %v", result.Fragment)
	}
	calls, ok := result.Fragment["answer_tool_calls"].([]model.ToolCall)
	if !ok || len(calls) != 1 {
		t.Errorf("expected tool calls surfaced under answer_tool_calls, got %v", result.Fragment["answer_tool_calls"])
	}
}

func TestAgentNode_Run_ChatError(t *testing.T) {
	mock := &model.MockChatModel{Err: errors.New("rate limited")}
	n := &AgentNode{Model: mock, Prompt: func(State) []model.Message { return nil }, NodeID: "llm"}

	result := n.Run(context.Background(), State{})
	var nodeErr *NodeError
	if !errors.As(result.Err, &nodeErr) {
		t.Fatalf("expected *NodeError, got %v", result.Err)
	}
	if nodeErr.Kind != KindTransient {
		t.Errorf("expected KindTransient for a chat model failure, got %v", nodeErr.Kind)
	}
}

func TestAgentNode_Run_RecordsCost(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "short answer"}}}
	tracker := NewCostTracker("run-1", "USD")
	n := &AgentNode{
		Model:       mock,
		Prompt:      func(State) []model.Message { return []model.Message{{Role: model.RoleUser, Content: "question"}} },
		CostTracker: tracker,
		ModelName:   "gpt-4o",
		NodeID:      "assistant",
	}

	result := n.Run(context.Background(), State{})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(tracker.GetCallHistory()) != 1 {
		t.Errorf("expected one recorded LLM call, got %d", len(tracker.GetCallHistory()))
	}
}

func TestEstimateTokenCount(t *testing.T) {
	if got := estimateTokenCount(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
	if got := estimateTokenCount("hi"); got != 1 {
		t.Errorf("expected at least 1 token for non-empty short string, got %d", got)
	}
	if got := estimateTokenCount("this is sixteen ch"); got != 4 {
		t.Errorf("expected len/4, got %d", got)
	}
}
