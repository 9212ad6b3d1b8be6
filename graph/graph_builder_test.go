package graph

import (
	"errors"
	"testing"
)

func TestCompile_RequiresSentinels(t *testing.T) {
	g := &StateGraph{nodes: map[string]*nodeEntry{}, channels: map[string]Channel{}}
	if _, err := g.Compile(); !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph, got %v", err)
	}
}

func TestCompile_DiamondLevelization(t *testing.T) {
	g := NewStateGraph(true)
	g.AddNode("fetch", NodeCustom, echoNode("fetch", true))
	g.AddNode("left", NodeCustom, echoNode("left", true))
	g.AddNode("right", NodeCustom, echoNode("right", true))
	g.AddNode("join", NodeCustom, echoNode("join", true))
	g.AddEdge(StartSentinel, "fetch")
	g.AddParallelEdge("fetch", "left")
	g.AddParallelEdge("fetch", "right")
	g.AddEdge("left", "join")
	g.AddEdge("right", "join")
	g.AddEdge("join", EndSentinel)

	cg, err := g.Compile()
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	levels := cg.Levels()
	if len(levels) != 5 {
		t.Fatalf("expected 5 levels (start, fetch, [left,right], join, end), got %d: %v", len(levels), levels)
	}
	if levels[2][0] != "left" || levels[2][1] != "right" {
		t.Errorf("expected left/right stable-sorted into the same level, got %v", levels[2])
	}
}

func TestCompile_UnknownEdgeTarget(t *testing.T) {
	g := NewStateGraph(true)
	g.AddEdge(StartSentinel, "ghost")
	if _, err := g.Compile(); !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph for unknown node, got %v", err)
	}
}

func TestCompile_ConditionalRequiresFallback(t *testing.T) {
	g := NewStateGraph(true)
	g.AddNode("branch", NodeConditional, IdentityNode)
	g.AddEdge(StartSentinel, "branch")
	g.AddConditionalEdge("branch", EndSentinel, "eq:x=1", "", 0)
	if _, err := g.Compile(); !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph for missing fallback, got %v", err)
	}
}

func TestCompile_CyclesDetected(t *testing.T) {
	g := NewStateGraph(true)
	g.AddNode("a", NodeCustom, IdentityNode)
	g.AddNode("b", NodeCustom, IdentityNode)
	g.AddEdge(StartSentinel, "a")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	if _, err := g.Compile(); !errors.Is(err, ErrCyclesDetected) {
		t.Fatalf("expected ErrCyclesDetected, got %v", err)
	}
}

func TestApplyFragment_ReducerDispatch(t *testing.T) {
	g := NewStateGraph(false)
	g.AddChannel(Channel{Name: "total", Type: ChannelNumber, Reducer: AddReducer})
	g.AddEdge(StartSentinel, EndSentinel)
	cg, err := g.Compile()
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	base := State{"total": int64(1)}
	out, err := cg.ApplyFragment(base, State{"total": int64(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["total"] != int64(3) {
		t.Errorf("expected reducer-merged total of 3, got %v", out["total"])
	}
	if base["total"] != int64(1) {
		t.Error("expected base state left unmodified")
	}
}

func TestApplyFragment_ClosedGraphRejectsUndeclaredChannel(t *testing.T) {
	g := NewStateGraph(false)
	g.AddEdge(StartSentinel, EndSentinel)
	cg, err := g.Compile()
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if _, err := cg.ApplyFragment(State{}, State{"undeclared": 1}); !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph for undeclared channel write, got %v", err)
	}
}

func TestApplyFragment_OpenGraphAcceptsUndeclaredChannel(t *testing.T) {
	g := NewStateGraph(true)
	g.AddEdge(StartSentinel, EndSentinel)
	cg, err := g.Compile()
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	out, err := cg.ApplyFragment(State{}, State{"anything": "goes"})
	if err != nil {
		t.Fatalf("unexpected error on open graph: %v", err)
	}
	if out["anything"] != "goes" {
		t.Errorf("got %v", out["anything"])
	}
}

func TestCompiledGraph_GetNodeAndEdgesFrom(t *testing.T) {
	g := NewStateGraph(true)
	g.AddNode("n1", NodeCustom, echoNode("n1", true))
	g.AddEdge(StartSentinel, "n1")
	g.AddEdge("n1", EndSentinel)
	cg, err := g.Compile()
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	node, typ, ok := cg.GetNode("n1")
	if !ok || typ != NodeCustom || node == nil {
		t.Errorf("expected n1 lookup to succeed, got %v %v %v", node, typ, ok)
	}
	if _, _, ok := cg.GetNode("missing"); ok {
		t.Error("expected missing node lookup to fail")
	}

	edges := cg.EdgesFrom("n1")
	if len(edges) != 1 || edges[0].To != EndSentinel {
		t.Errorf("unexpected edges: %v", edges)
	}
	if cg.HasCycles() {
		t.Error("expected a compiled graph to never report cycles")
	}
	if cg.NodeCount() != 3 {
		t.Errorf("expected 3 nodes (start, end, n1), got %d", cg.NodeCount())
	}
}
