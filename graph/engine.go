// Package graph provides the core graph execution engine for workflow-go.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/workflow-go/graph/emit"
)

// Engine ties a CompiledGraph to the runtime components every execution
// mode shares: the resilience manager (bulkhead + circuit breakers), the
// state versioning system, the checkpointer, and the human-in-the-loop
// control plane (interrupts, breakpoints, resumption). It is the single
// entry point a caller constructs once per compiled graph and then drives
// through Invoke/Stream/Resume.
type Engine struct {
	Graph  *CompiledGraph
	config EngineConfig

	Resilience *Resilience
	Versioning *StateVersioningSystem
	Branches   *BranchManager

	Checkpointer Checkpointer
	Interrupts   *InterruptManager
	Breakpoints  *BreakpointManager
	Resumption   *ResumptionManager

	Emitter emit.Emitter
	Metrics *PrometheusMetrics
	Cost    *CostTracker

	nodePolicies map[string]*NodePolicy
	nodeEffects  map[string]*SideEffectPolicy
	subgraphs    map[string]*CompiledGraph

	recordedMu sync.Mutex
	recorded   []RecordedIO
}

// NewEngine builds an Engine for a compiled graph, wiring together fresh
// resilience/versioning/control-plane components from opts.
func NewEngine(g *CompiledGraph, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	resilience := NewResilience(cfg.MaxConcurrentNodes, cfg.QueueDepth, cfg.CircuitBreakerConfig)
	versioning := NewStateVersioningSystem(NewInMemoryVersionStorage(), cfg.VersioningConfig)

	interrupts := NewInterruptManager()
	interrupts.SetDefaultTimeout(cfg.InterruptDefaultTimeout)

	e := &Engine{
		Graph:        g,
		config:       cfg,
		Resilience:   resilience,
		Versioning:   versioning,
		Branches:     NewBranchManager(),
		Checkpointer: cfg.Checkpointer,
		Interrupts:   interrupts,
		Breakpoints:  NewBreakpointManager(),
		Resumption:   NewResumptionManager(),
		Emitter:      emit.NewNullEmitter(),
		Metrics:      cfg.Metrics,
		Cost:         cfg.CostTracker,
		nodePolicies: map[string]*NodePolicy{},
		nodeEffects:  map[string]*SideEffectPolicy{},
		subgraphs:    map[string]*CompiledGraph{},
	}
	return e, nil
}

// SetEmitter installs the observability sink every ParallelExecutor this
// Engine creates will emit through. The StreamingExecutor behind Stream
// emits no events.
func (e *Engine) SetEmitter(em emit.Emitter) {
	if em == nil {
		em = emit.NewNullEmitter()
	}
	e.Emitter = em
}

// SetNodePolicy attaches a NodePolicy (timeout/retry/idempotency override)
// to a specific node id.
func (e *Engine) SetNodePolicy(nodeID string, p *NodePolicy) {
	e.nodePolicies[nodeID] = p
}

// SetNodeEffects declares a node's external I/O characteristics. Nodes with
// Recordable=true participate in record/replay: a ReplayMode=false Invoke
// captures their output via RecordedIOs, and a later ReplayMode=true Invoke
// (fed those recordings via SetReplayRecordings) consults them instead of,
// or to verify against, re-invoking the node.
func (e *Engine) SetNodeEffects(nodeID string, p *SideEffectPolicy) {
	e.nodeEffects[nodeID] = p
}

// SetReplayRecordings installs the I/O recordings a ReplayMode=true Invoke
// consults for recordable nodes. Typically populated from a prior Invoke's
// RecordedIOs.
func (e *Engine) SetReplayRecordings(recordings []RecordedIO) {
	e.recordedMu.Lock()
	defer e.recordedMu.Unlock()
	e.recorded = append([]RecordedIO(nil), recordings...)
}

// RecordedIOs returns the I/O recordings captured by the most recent Invoke.
func (e *Engine) RecordedIOs() []RecordedIO {
	e.recordedMu.Lock()
	defer e.recordedMu.Unlock()
	out := make([]RecordedIO, len(e.recorded))
	copy(out, e.recorded)
	return out
}

// RegisterSubgraph makes a compiled sub-graph reachable from a NodeSubgraph
// node of the given id.
func (e *Engine) RegisterSubgraph(nodeID string, sub *CompiledGraph) {
	e.subgraphs[nodeID] = sub
}

func (e *Engine) newParallelExecutor() *ParallelExecutor {
	pe := NewParallelExecutor(e.Graph, e.Resilience, e.Versioning)
	pe.Emitter = e.Emitter
	pe.DefaultNodeTimeout = e.config.DefaultNodeTimeout
	pe.NodePolicies = e.nodePolicies
	pe.Effects = e.nodeEffects
	pe.ReplayMode = e.config.ReplayMode
	pe.StrictReplay = e.config.StrictReplay
	pe.Replay = e.RecordedIOs()
	pe.Subgraphs = e.subgraphs
	return pe
}

// Invoke runs the whole graph to completion using the parallel,
// level-batched scheduler, applying the engine's configured
// wall-clock budget.
func (e *Engine) Invoke(ctx context.Context, initial State) (State, error) {
	if e.config.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RunWallClockBudget)
		defer cancel()
	}

	pe := e.newParallelExecutor()
	final, err := pe.ExecuteParallel(ctx, initial)

	if !e.config.ReplayMode {
		e.recordedMu.Lock()
		e.recorded = pe.RecordedIOs()
		e.recordedMu.Unlock()
	}

	if e.Metrics != nil {
		m := pe.Metrics()
		for i := 0; i < m.Rollbacks; i++ {
			e.Metrics.IncrementRollbacks("")
		}
	}
	return final, err
}

// Stream runs the graph one node at a time, returning a channel of
// ExecutionMessage frames and a channel carrying the final
// error. Callers should drain both until the message channel closes.
func (e *Engine) Stream(ctx context.Context, initial State) (<-chan ExecutionMessage, <-chan error) {
	se := NewStreamingExecutor(e.Graph, e.Resilience)
	se.DefaultNodeTimeout = e.config.DefaultNodeTimeout
	se.NodePolicies = e.nodePolicies
	return se.Stream(ctx, initial)
}

// Checkpoint saves the current state under threadID, returning the new
// checkpoint's id.
func (e *Engine) Checkpoint(threadID string, state State, metadata map[string]any) (string, error) {
	return e.Checkpointer.Save(threadID, state, metadata)
}

// Resume loads a thread's checkpoint (latest when checkpointID is empty)
// and re-invokes the graph from that state.
func (e *Engine) Resume(ctx context.Context, threadID, checkpointID string) (State, error) {
	cp, found, err := e.Checkpointer.Load(threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: thread %q checkpoint %q", ErrCheckpointNotFound, threadID, checkpointID)
	}
	return e.Invoke(ctx, cp.StatePayload)
}

// InvokeWithInterrupt wraps Invoke with the human-in-the-loop control
// plane: after Invoke succeeds, it waits up to timeout for a pending
// interrupt on the Engine's InterruptManager and returns its handle (nil
// when none appears in time). It does not wait for a decision.
//
// Nodes participate by calling Engine.Interrupts.CreateInterrupt from
// within their Run method and returning a NodeResult with a Recoverable
// NodeError; the caller resumes the paused thread via Approve/
// ModifyAndApprove and re-invokes Resume.
func (e *Engine) InvokeWithInterrupt(ctx context.Context, initial State, timeout time.Duration) (State, *InterruptHandle, error) {
	state, err := e.Invoke(ctx, initial)
	if err != nil {
		return state, nil, err
	}
	if handle, ok := e.Interrupts.WaitForInterrupt(timeout); ok {
		if e.Metrics != nil {
			e.Metrics.IncrementInterruptTimeouts(handle.NodeID)
		}
		return state, handle, nil
	}
	return state, nil, nil
}

// Snapshot captures a resumable WorkflowSnapshot for executionID at the
// last-completed node, recording it with both the ResumptionManager and
// the durable Checkpointer.
func (e *Engine) Snapshot(executionID, graphName, lastNode string, state State) (*WorkflowSnapshot, string, error) {
	snap := e.Resumption.SaveResumptionPoint(executionID, graphName, lastNode, state)
	checkpointID, err := e.Checkpointer.Save(executionID, state, map[string]any{"snapshot_id": snap.ID})
	return snap, checkpointID, err
}
