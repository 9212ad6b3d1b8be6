package graph

import "sort"

// TraversalStrategy selects a sequential node-id ordering for the
// Streaming Executor.
type TraversalStrategy int

const (
	TraversalBreadthFirst TraversalStrategy = iota
	TraversalDepthFirst
	TraversalTopological
	TraversalPriority
)

// Traverse returns a linear node-id sequence starting at __start__,
// skipping sentinels is left to the executor. Priority collapses to
// breadth-first when no edge carries a non-zero Priority.
func (g *CompiledGraph) Traverse(strategy TraversalStrategy) []string {
	switch strategy {
	case TraversalDepthFirst:
		return g.traverseDFS()
	case TraversalTopological:
		return g.traverseTopological()
	case TraversalPriority:
		if g.hasEdgePriorities() {
			return g.traversePriority()
		}
		return g.traverseBFS()
	default:
		return g.traverseBFS()
	}
}

func (g *CompiledGraph) traverseBFS() []string {
	var order []string
	visited := map[string]bool{}
	queue := []string{StartSentinel}
	visited[StartSentinel] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		targets := sortedTargets(g.edgesBy[cur])
		for _, to := range targets {
			if !visited[to] {
				visited[to] = true
				queue = append(queue, to)
			}
		}
	}
	return order
}

func (g *CompiledGraph) traverseDFS() []string {
	var order []string
	visited := map[string]bool{}
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		for _, to := range sortedTargets(g.edgesBy[id]) {
			visit(to)
		}
	}
	visit(StartSentinel)
	return order
}

func (g *CompiledGraph) traverseTopological() []string {
	var order []string
	for _, level := range g.levels {
		order = append(order, level...)
	}
	return order
}

func (g *CompiledGraph) hasEdgePriorities() bool {
	for _, e := range g.allEdges {
		if e.Priority != 0 {
			return true
		}
	}
	return false
}

func (g *CompiledGraph) traversePriority() []string {
	var order []string
	visited := map[string]bool{}
	queue := []string{StartSentinel}
	visited[StartSentinel] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		edges := append([]Edge{}, g.edgesBy[cur]...)
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Priority > edges[j].Priority })
		for _, e := range edges {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return order
}

func sortedTargets(edges []Edge) []string {
	targets := make([]string, 0, len(edges))
	for _, e := range edges {
		targets = append(targets, e.To)
	}
	sort.Strings(targets)
	return targets
}

// DependencyAnalyzer exposes the raw dependency/dependent maps computed
// during Compile, for callers that want to inspect structure directly
// rather than only the levelized output.
type DependencyAnalyzer struct {
	Dependencies map[string][]string // node -> nodes it depends on
	Dependents   map[string][]string // node -> nodes that depend on it
	Levels       [][]string
}

// Analyze builds a DependencyAnalyzer from a compiled graph's edge set.
func (g *CompiledGraph) Analyze() *DependencyAnalyzer {
	deps := make(map[string][]string)
	dependents := make(map[string][]string)
	for from, edges := range g.edgesBy {
		for _, e := range edges {
			deps[e.To] = append(deps[e.To], from)
			dependents[from] = append(dependents[from], e.To)
		}
	}
	for _, m := range []map[string][]string{deps, dependents} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return &DependencyAnalyzer{Dependencies: deps, Dependents: dependents, Levels: g.levels}
}
