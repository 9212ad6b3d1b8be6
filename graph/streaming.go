package graph

import (
	"context"
	"time"
)

// ExecutionMessage is one frame of the sequential/streaming executor's
// output channel, framing node start/completion so a caller
// can observe progress without waiting for the whole run.
type ExecutionMessage struct {
	From        string
	To          string
	Payload     State
	Timestamp   time.Time
	MessageType string
}

const (
	MsgTypeStart     = "start"
	MsgTypeCompleted = "completed"
	MsgTypeError     = "error"
)

// StreamingExecutor walks a CompiledGraph one node at a time through its
// Frontier, in OrderKey order, emitting an ExecutionMessage before and
// after each node. It reuses
// the scheduler's Frontier/WorkItem rather than a separate traversal,
// and CompiledGraph.ApplyFragment for channel-reducer merging.
type StreamingExecutor struct {
	Graph              *CompiledGraph
	Resilience         *Resilience
	DefaultNodeTimeout time.Duration
	NodePolicies       map[string]*NodePolicy
}

func NewStreamingExecutor(g *CompiledGraph, r *Resilience) *StreamingExecutor {
	return &StreamingExecutor{Graph: g, Resilience: r, NodePolicies: map[string]*NodePolicy{}}
}

// Stream runs the graph sequentially, returning a channel of framing
// messages (bounded to depth 100) and a channel that
// receives the single final error (nil on success) once execution ends.
func (se *StreamingExecutor) Stream(ctx context.Context, initial State) (<-chan ExecutionMessage, <-chan error) {
	out := make(chan ExecutionMessage, 100)
	done := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(done)

		frontier := NewFrontier(100)
		state := initial.Clone()

		seed := WorkItem{NodeID: StartSentinel, State: state, OrderKey: ComputeOrderKey("", 0)}
		if err := frontier.Enqueue(ctx, seed); err != nil {
			done <- err
			return
		}

		visited := map[string]bool{}
		for frontier.Len() > 0 {
			item, err := frontier.Dequeue(ctx)
			if err != nil {
				done <- err
				return
			}
			if visited[item.NodeID] {
				continue
			}
			visited[item.NodeID] = true

			out <- ExecutionMessage{From: item.ParentNodeID, To: item.NodeID, Payload: state, Timestamp: time.Now(), MessageType: MsgTypeStart}

			impl, typ, ok := se.Graph.GetNode(item.NodeID)
			if !ok {
				err := &NodeError{Kind: KindFatal, NodeID: item.NodeID, Message: "node not found"}
				out <- ExecutionMessage{To: item.NodeID, Timestamp: time.Now(), MessageType: MsgTypeError}
				done <- err
				return
			}

			var result NodeResult
			switch typ {
			case NodeStart, NodeEnd, NodeConditional, NodeParallel:
				result = NodeResult{Fragment: State{}}
			default:
				policy := se.NodePolicies[item.NodeID]
				result = executeNodeWithTimeout(ctx, impl, item.NodeID, state, policy, se.DefaultNodeTimeout)
			}

			if result.Err != nil {
				out <- ExecutionMessage{To: item.NodeID, Timestamp: time.Now(), MessageType: MsgTypeError}
				done <- result.Err
				return
			}

			merged, err := se.Graph.ApplyFragment(state, result.Fragment)
			if err != nil {
				done <- err
				return
			}
			state = merged

			out <- ExecutionMessage{From: item.NodeID, Payload: state, Timestamp: time.Now(), MessageType: MsgTypeCompleted}

			if item.NodeID == EndSentinel {
				break
			}

			edgeIndex := 0
			for _, e := range se.Graph.EdgesFrom(item.NodeID) {
				fires := e.Type != EdgeConditional || (e.When != nil && e.When(state))
				target := e.To
				if e.Type == EdgeConditional && !fires {
					if e.Fallback == "" {
						edgeIndex++
						continue
					}
					target = e.Fallback
				}
				next := WorkItem{
					NodeID:       target,
					State:        state,
					ParentNodeID: item.NodeID,
					EdgeIndex:    edgeIndex,
					OrderKey:     ComputeOrderKey(item.NodeID, edgeIndex),
				}
				if err := frontier.Enqueue(ctx, next); err != nil {
					done <- err
					return
				}
				edgeIndex++
			}
		}
	}()

	return out, done
}
