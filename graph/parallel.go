package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/workflow-go/graph/emit"
)

// ExecutionMetrics reports per-execution statistics from the parallel
// scheduler.
type ExecutionMetrics struct {
	TotalNodes            int
	ParallelBatches       int
	TotalDurationMs       int64
	AverageNodeDurationMs float64
	MaxNodeDurationMs     int64
	ParallelismEfficiency float64
	StateConflicts        int
	Rollbacks             int
}

// ParallelExecutor runs a CompiledGraph level-by-level, dispatching every
// non-sentinel node of a level concurrently, merging completions under
// channel reducers, and rolling back to the initial snapshot V0 on a Fatal
// error.
type ParallelExecutor struct {
	Graph      *CompiledGraph
	Resilience *Resilience
	Versioning *StateVersioningSystem
	Emitter    emit.Emitter

	DefaultNodeTimeout time.Duration
	NodePolicies       map[string]*NodePolicy
	DeadlockInterval   time.Duration

	// Effects declares which nodes perform recordable external I/O. A node
	// absent from this map, or mapped to a policy with Recordable=false, is
	// always executed live regardless of ReplayMode.
	Effects map[string]*SideEffectPolicy

	// ReplayMode, when true, consults Replay for recordable nodes instead of
	// (StrictReplay=false) or in addition to (StrictReplay=true) invoking
	// them live. StrictReplay executes the node and verifies its output hash
	// against the recording, surfacing ErrReplayMismatch on divergence;
	// non-strict replay trusts the recording and skips execution entirely.
	ReplayMode   bool
	StrictReplay bool

	// Replay holds the recordings a prior (ReplayMode=false) run captured,
	// consulted by attempt and node id when ReplayMode is true.
	Replay []RecordedIO

	recordedMu sync.Mutex
	recorded   []RecordedIO

	Subgraphs map[string]*CompiledGraph

	metricsMu sync.Mutex
	metrics   ExecutionMetrics
}

func NewParallelExecutor(g *CompiledGraph, r *Resilience, v *StateVersioningSystem) *ParallelExecutor {
	return &ParallelExecutor{
		Graph:            g,
		Resilience:       r,
		Versioning:       v,
		NodePolicies:     map[string]*NodePolicy{},
		Effects:          map[string]*SideEffectPolicy{},
		DeadlockInterval: 5 * time.Second,
		Emitter:          emit.NewNullEmitter(),
	}
}

// RecordedIOs returns the I/O recordings captured by recordable nodes during
// the last ExecuteParallel call. Feed this back in via Replay to replay the
// same run.
func (pe *ParallelExecutor) RecordedIOs() []RecordedIO {
	pe.recordedMu.Lock()
	defer pe.recordedMu.Unlock()
	out := make([]RecordedIO, len(pe.recorded))
	copy(out, pe.recorded)
	return out
}

func (pe *ParallelExecutor) addRecording(rec RecordedIO) {
	pe.recordedMu.Lock()
	pe.recorded = append(pe.recorded, rec)
	pe.recordedMu.Unlock()
}

// Metrics returns a snapshot of the accumulated execution metrics.
func (pe *ParallelExecutor) Metrics() ExecutionMetrics {
	pe.metricsMu.Lock()
	defer pe.metricsMu.Unlock()
	return pe.metrics
}

// ExecuteParallel runs the level-batched scheduling algorithm: build levels
// (already done at Compile time), snapshot V0, then for each level dispatch active
// nodes concurrently, merge their fragments under channel reducers, and
// either snapshot the resulting state (success) or roll back to the
// initial snapshot V0 (any Fatal error) and return immediately.
func (pe *ParallelExecutor) ExecuteParallel(ctx context.Context, initial State) (State, error) {
	start := time.Now()
	levels := pe.Graph.Levels()

	state := initial.Clone()
	v0, err := pe.Versioning.CreateVersion(state, VersionMetadata{Message: "initial"})
	if err != nil {
		return nil, err
	}
	pe.emit(emit.Event{Msg: "execution_start", Meta: map[string]any{"levels": len(levels)}})

	active := map[string]bool{StartSentinel: true}
	var nodeDurations []time.Duration
	batchesExecuted := 0

	for _, level := range levels {
		batchesExecuted++
		pending := activeInLevel(level, active)
		if len(pending) == 0 {
			continue
		}

		merged, conflicts, durations, fatalErr := pe.executeBatch(ctx, pending, state)
		nodeDurations = append(nodeDurations, durations...)
		pe.addStateConflicts(conflicts)

		if fatalErr != nil {
			rolledBack, rbErr := pe.Versioning.Rollback(v0)
			if rbErr != nil {
				return nil, fmt.Errorf("rollback after fatal error failed: %w (original: %v)", rbErr, fatalErr)
			}
			pe.addRollback()
			pe.finalizeMetrics(start, nodeDurations, batchesExecuted)
			pe.emit(emit.Event{Msg: "rollback", Meta: map[string]any{"cause": fatalErr.Error()}})
			return rolledBack, fatalErr
		}

		state = merged
		if _, err := pe.Versioning.CreateVersion(state, VersionMetadata{}); err != nil {
			return nil, err
		}

		active = pe.advanceActivation(pending, active, state)
	}

	pe.finalizeMetrics(start, nodeDurations, batchesExecuted)
	pe.emit(emit.Event{Msg: "execution_completed"})
	return state, nil
}

func activeInLevel(level []string, active map[string]bool) []string {
	var out []string
	for _, id := range level {
		if id == StartSentinel || id == EndSentinel {
			continue
		}
		if active[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// executeBatch dispatches every node id in pending concurrently, each
// seeing the same level-entry state snapshot, merging fragments into a shared accumulator under the
// graph's channel reducers as each completes.
func (pe *ParallelExecutor) executeBatch(ctx context.Context, pending []string, levelEntryState State) (State, int, []time.Duration, error) {
	var mu sync.Mutex
	merged := levelEntryState.Clone()
	conflicts := 0
	writerCount := map[string]int{}
	var durations []time.Duration

	group, gctx := errgroup.WithContext(ctx)
	for _, nodeID := range pending {
		nodeID := nodeID
		group.Go(func() error {
			release, err := pe.Resilience.Bulkhead.Acquire(gctx)
			if err != nil {
				return &NodeError{Kind: KindFatal, NodeID: nodeID, Message: "bulkhead rejected", Cause: err}
			}
			defer release()

			nodeStart := time.Now()
			result := pe.runNode(gctx, nodeID, levelEntryState)
			elapsed := time.Since(nodeStart)

			mu.Lock()
			durations = append(durations, elapsed)
			mu.Unlock()

			if result.Err != nil {
				ne, ok := result.Err.(*NodeError)
				if !ok {
					ne = &NodeError{Kind: KindPermanent, NodeID: nodeID, Message: result.Err.Error(), Cause: result.Err}
				}
				if ne.Kind == KindFatal {
					return ne
				}
				// Permanent/Transient/Recoverable surfacing here means the
				// retry wrapper already exhausted its attempts; the node
				// fails but peers continue.
				return nil
			}

			mu.Lock()
			for k := range result.Fragment {
				writerCount[k]++
			}
			newMerged, applyErr := pe.Graph.ApplyFragment(merged, result.Fragment)
			if applyErr == nil {
				merged = newMerged
			}
			mu.Unlock()
			return nil
		})
	}

	err := group.Wait()

	for key, count := range writerCount {
		if count > 1 {
			if ch, ok := pe.Graph.channels[key]; !ok || isDefaultReducer(ch.Reducer) {
				conflicts++
			}
		}
	}

	return merged, conflicts, durations, err
}

func isDefaultReducer(r Reducer) bool {
	return r == nil
}

// runNode dispatches on NodeType: identity for Start/End,
// no-op for Conditional/Parallel markers (routing is steered by
// advanceActivation, not by node mutation), recursion into a named
// sub-graph for Subgraph, and direct invocation (wrapped by resilience +
// timeout) for Agent/Tool/Custom nodes.
func (pe *ParallelExecutor) runNode(ctx context.Context, nodeID string, state State) NodeResult {
	impl, typ, ok := pe.Graph.GetNode(nodeID)
	if !ok {
		return NodeResult{Err: &NodeError{Kind: KindFatal, NodeID: nodeID, Message: "node not found"}}
	}

	switch typ {
	case NodeStart, NodeEnd, NodeConditional, NodeParallel:
		return NodeResult{Fragment: State{}}
	case NodeSubgraph:
		sub, ok := pe.Subgraphs[nodeID]
		if !ok {
			return NodeResult{Err: &NodeError{Kind: KindFatal, NodeID: nodeID, Message: "subgraph not registered"}}
		}
		childExec := &ParallelExecutor{
			Graph:              sub,
			Resilience:         pe.Resilience, // subgraphs share the parent's bulkhead/circuits
			Versioning:         pe.Versioning,
			Emitter:            pe.Emitter,
			DefaultNodeTimeout: pe.DefaultNodeTimeout,
			NodePolicies:       pe.NodePolicies,
			Effects:            pe.Effects,
			ReplayMode:         pe.ReplayMode,
			StrictReplay:       pe.StrictReplay,
			Replay:             pe.Replay,
			DeadlockInterval:   pe.DeadlockInterval,
			Subgraphs:          pe.Subgraphs,
		}
		finalState, err := childExec.ExecuteParallel(ctx, state)
		childMetrics := childExec.Metrics()
		pe.metricsMu.Lock()
		pe.metrics.TotalNodes += childMetrics.TotalNodes
		pe.metrics.Rollbacks += childMetrics.Rollbacks
		pe.metrics.StateConflicts += childMetrics.StateConflicts
		pe.metricsMu.Unlock()
		for _, rec := range childExec.RecordedIOs() {
			pe.addRecording(rec)
		}
		if err != nil {
			return NodeResult{Err: err}
		}
		return NodeResult{Fragment: finalState}
	default:
		policy := pe.NodePolicies[nodeID]
		return pe.executeWithResilience(ctx, impl, nodeID, state, policy)
	}
}

func (pe *ParallelExecutor) executeWithResilience(ctx context.Context, impl Node, nodeID string, state State, policy *NodePolicy) NodeResult {
	var result NodeResult
	cb := pe.Resilience.Circuits.Get(nodeID)

	execErr := cb.Execute(ctx, func(ctx context.Context) error {
		var retryPolicy *RetryPolicy
		if policy != nil {
			retryPolicy = policy.RetryPolicy
		}
		return RetryWithBackoff(ctx, retryPolicy, nil, func(ctx context.Context, attempt int) error {
			result = pe.runWithEffects(ctx, impl, nodeID, state, policy, attempt)
			if result.Err == nil {
				return nil
			}
			ne, ok := result.Err.(*NodeError)
			if !ok {
				return result.Err
			}
			if !ne.Retryable() {
				return nil // surfaced below without further retry
			}
			return ne
		})
	})

	if execErr != nil && result.Err == nil {
		result.Err = execErr
	}
	return result
}

// runWithEffects executes impl directly unless nodeID carries a Recordable
// SideEffectPolicy, in which case it consults the recording set for this
// (nodeID, attempt): in non-strict ReplayMode it trusts the recorded
// fragment and skips live execution; in strict ReplayMode it executes live
// and verifies the result hash against the recording, surfacing
// ErrReplayMismatch on divergence. Outside ReplayMode, a recordable node's
// result is captured via recordIO for a later replay run.
func (pe *ParallelExecutor) runWithEffects(ctx context.Context, impl Node, nodeID string, state State, policy *NodePolicy, attempt int) NodeResult {
	effects := pe.Effects[nodeID]
	if effects == nil || !effects.Recordable {
		return executeNodeWithTimeout(ctx, impl, nodeID, state, policy, pe.DefaultNodeTimeout)
	}

	if pe.ReplayMode {
		if rec, found := lookupRecordedIO(pe.Replay, nodeID, attempt); found {
			if !pe.StrictReplay {
				var fragment State
				if err := json.Unmarshal(rec.Response, &fragment); err != nil {
					return NodeResult{Err: &NodeError{Kind: KindFatal, NodeID: nodeID, Message: "failed to decode recorded response", Cause: err}}
				}
				return NodeResult{Fragment: fragment}
			}
			result := executeNodeWithTimeout(ctx, impl, nodeID, state, policy, pe.DefaultNodeTimeout)
			if result.Err != nil {
				return result
			}
			if err := verifyReplayHash(rec, result.Fragment); err != nil {
				return NodeResult{Err: &NodeError{Kind: KindFatal, NodeID: nodeID, Message: "replay verification failed", Cause: err}}
			}
			return result
		}
	}

	result := executeNodeWithTimeout(ctx, impl, nodeID, state, policy, pe.DefaultNodeTimeout)
	if result.Err == nil && !pe.ReplayMode {
		rec, err := recordIO(nodeID, attempt, state, result.Fragment)
		if err == nil {
			pe.addRecording(rec)
		}
	}
	return result
}

// advanceActivation determines which nodes in later levels become active
// based on which edges actually fire out of the nodes just executed.
// Direct and Parallel edges always fire; Conditional edges fire iff
// edge.When(state) is true, and a source's Fallback target fires once if
// none of its Conditional edges fired.
func (pe *ParallelExecutor) advanceActivation(executed []string, prevActive map[string]bool, state State) map[string]bool {
	next := map[string]bool{}
	for id, v := range prevActive {
		if v {
			next[id] = true
		}
	}
	for _, from := range executed {
		anyConditionalFired := false
		var fallback string
		for _, e := range pe.Graph.EdgesFrom(from) {
			switch e.Type {
			case EdgeDirect, EdgeParallel:
				next[e.To] = true
			case EdgeConditional:
				if e.When != nil && e.When(state) {
					next[e.To] = true
					anyConditionalFired = true
				} else if e.Fallback != "" {
					fallback = e.Fallback
				}
			}
		}
		if !anyConditionalFired && fallback != "" {
			next[fallback] = true
		}
	}
	return next
}

func (pe *ParallelExecutor) addStateConflicts(n int) {
	pe.metricsMu.Lock()
	pe.metrics.StateConflicts += n
	pe.metricsMu.Unlock()
}

func (pe *ParallelExecutor) addRollback() {
	pe.metricsMu.Lock()
	pe.metrics.Rollbacks++
	pe.metricsMu.Unlock()
}

func (pe *ParallelExecutor) finalizeMetrics(start time.Time, durations []time.Duration, batches int) {
	pe.metricsMu.Lock()
	defer pe.metricsMu.Unlock()

	pe.metrics.TotalNodes += pe.Graph.NodeCount()
	pe.metrics.ParallelBatches += batches
	totalMs := time.Since(start).Milliseconds()
	if totalMs < 1 {
		totalMs = 1
	}
	pe.metrics.TotalDurationMs = totalMs

	var sum, max int64
	for _, d := range durations {
		ms := d.Milliseconds()
		sum += ms
		if ms > max {
			max = ms
		}
	}
	if len(durations) > 0 {
		pe.metrics.AverageNodeDurationMs = float64(sum) / float64(len(durations))
	}
	pe.metrics.MaxNodeDurationMs = max

	sequentialEstimate := float64(pe.metrics.TotalNodes) * 100.0
	pe.metrics.ParallelismEfficiency = sequentialEstimate / float64(pe.metrics.TotalDurationMs)
}

func (pe *ParallelExecutor) emit(e emit.Event) {
	if pe.Emitter == nil {
		return
	}
	pe.Emitter.Emit(e)
}
