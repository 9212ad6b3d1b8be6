package graph

import (
	"context"
	"testing"
)

func TestNodeType_String(t *testing.T) {
	cases := map[NodeType]string{
		NodeStart:       "Start",
		NodeEnd:         "End",
		NodeAgent:       "Agent",
		NodeTool:        "Tool",
		NodeConditional: "Conditional",
		NodeParallel:    "Parallel",
		NodeSubgraph:    "Subgraph",
		NodeCustom:      "Custom",
		NodeType(99):    "Unknown",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("NodeType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}

func TestNodeFunc_Run(t *testing.T) {
	fn := NodeFunc(func(_ context.Context, state State) NodeResult {
		return NodeResult{Fragment: State{"seen": state["x"]}}
	})
	result := fn.Run(context.Background(), State{"x": 42})
	if result.Fragment["seen"] != 42 {
		t.Errorf("got %v", result.Fragment)
	}
}

func TestIdentityNode_PassesThroughUnchanged(t *testing.T) {
	result := IdentityNode.Run(context.Background(), State{"x": 1})
	if len(result.Fragment) != 0 {
		t.Errorf("expected empty fragment from identity node, got %v", result.Fragment)
	}
	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
}

func TestNextConstructors(t *testing.T) {
	if n := Stop(); !n.Terminal {
		t.Error("expected Stop to set Terminal")
	}
	if n := Goto("x"); n.To != "x" || n.Terminal {
		t.Errorf("got %+v", n)
	}
	n := GotoMany("a", "b")
	if len(n.Many) != 2 || n.Many[0] != "a" || n.Many[1] != "b" {
		t.Errorf("got %+v", n)
	}
}
