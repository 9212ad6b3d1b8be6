package graph

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BreakpointCondition gates a Breakpoint behind a predicate over state,
// reusing the condition DSL's Predicate signature rather than inventing a
// separate closure type.
type BreakpointCondition = Predicate

// Breakpoint is a single debugger stop point on a node.
type Breakpoint struct {
	ID        string
	NodeID    string
	Condition BreakpointCondition
	Enabled   bool
	HitCount  int
	CreatedAt time.Time
}

// ShouldTrigger reports whether this breakpoint fires for state: disabled
// breakpoints never trigger; a breakpoint with no condition always fires.
func (b *Breakpoint) ShouldTrigger(state State) bool {
	if !b.Enabled {
		return false
	}
	if b.Condition == nil {
		return true
	}
	return b.Condition(state)
}

// BreakpointHit records one triggering of a breakpoint.
type BreakpointHit struct {
	BreakpointID  string
	NodeID        string
	StateSnapshot State
	Timestamp     time.Time
}

// BreakpointAction is what the debugger decides after a hit.
type BreakpointActionKind int

const (
	ActionContinue BreakpointActionKind = iota
	ActionStepOver
	ActionStepInto
	ActionStepOut
	ActionAbort
)

type BreakpointAction struct {
	Kind   BreakpointActionKind
	Reason string
}

// BreakpointCallback decides the action to take for a hit; if none is
// registered, HandleBreakpoint defaults to ActionContinue.
type BreakpointCallback func(hit BreakpointHit) BreakpointAction

// BreakpointManager tracks breakpoints by node and by id, plus hit
// history.
type BreakpointManager struct {
	mu       sync.Mutex
	byNode   map[string][]*Breakpoint
	byID     map[string]*Breakpoint
	history  []BreakpointHit
	callback BreakpointCallback
}

func NewBreakpointManager() *BreakpointManager {
	return &BreakpointManager{
		byNode: map[string][]*Breakpoint{},
		byID:   map[string]*Breakpoint{},
	}
}

// SetBreakpoint registers a (possibly conditional) breakpoint on nodeID.
func (m *BreakpointManager) SetBreakpoint(nodeID string, condition BreakpointCondition) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp := &Breakpoint{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Condition: condition,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	m.byNode[nodeID] = append(m.byNode[nodeID], bp)
	m.byID[bp.ID] = bp
	return bp.ID
}

// RemoveBreakpoint deletes a breakpoint by id, reporting whether it existed.
func (m *BreakpointManager) RemoveBreakpoint(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)

	list := m.byNode[bp.NodeID]
	for i, b := range list {
		if b.ID == id {
			m.byNode[bp.NodeID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return true
}

// ListBreakpoints returns every registered breakpoint.
func (m *BreakpointManager) ListBreakpoints() []*Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Breakpoint, 0, len(m.byID))
	for _, bp := range m.byID {
		out = append(out, bp)
	}
	return out
}

// ClearAll removes every breakpoint.
func (m *BreakpointManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byNode = map[string][]*Breakpoint{}
	m.byID = map[string]*Breakpoint{}
}

// IsBreakpoint reports whether any enabled breakpoint on nodeID triggers
// for state, without recording a hit.
func (m *BreakpointManager) IsBreakpoint(nodeID string, state State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bp := range m.byNode[nodeID] {
		if bp.ShouldTrigger(state) {
			return true
		}
	}
	return false
}

// RegisterCallback installs the handler HandleBreakpoint consults for its
// action decision.
func (m *BreakpointManager) RegisterCallback(cb BreakpointCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// HandleBreakpoint finds the first triggering breakpoint on nodeID,
// records a hit, and returns the callback's decided action (ActionContinue
// if no callback is registered or no breakpoint triggers).
func (m *BreakpointManager) HandleBreakpoint(nodeID string, state State) BreakpointAction {
	m.mu.Lock()
	var triggered *Breakpoint
	for _, bp := range m.byNode[nodeID] {
		if bp.ShouldTrigger(state) {
			bp.HitCount++
			triggered = bp
			break
		}
	}
	if triggered == nil {
		m.mu.Unlock()
		return BreakpointAction{Kind: ActionContinue}
	}

	hit := BreakpointHit{BreakpointID: triggered.ID, NodeID: nodeID, StateSnapshot: state.Clone(), Timestamp: time.Now()}
	m.history = append(m.history, hit)
	cb := m.callback
	m.mu.Unlock()

	if cb == nil {
		return BreakpointAction{Kind: ActionContinue}
	}
	return cb(hit)
}

// GetHitHistory returns every recorded hit for breakpointID.
func (m *BreakpointManager) GetHitHistory(breakpointID string) []BreakpointHit {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BreakpointHit
	for _, h := range m.history {
		if h.BreakpointID == breakpointID {
			out = append(out, h)
		}
	}
	return out
}

// breakpointConfigEntry is the exported/imported shape: the condition
// closure itself cannot round-trip through JSON, only whether one was set.
type breakpointConfigEntry struct {
	ID           string `json:"id"`
	NodeID       string `json:"node_id"`
	Enabled      bool   `json:"enabled"`
	HasCondition bool   `json:"has_condition"`
}

// ExportConfig serializes every breakpoint's id/node/enabled/has-condition
// flag to JSON.
func (m *BreakpointManager) ExportConfig() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]breakpointConfigEntry, 0, len(m.byID))
	for _, bp := range m.byID {
		entries = append(entries, breakpointConfigEntry{
			ID: bp.ID, NodeID: bp.NodeID, Enabled: bp.Enabled, HasCondition: bp.Condition != nil,
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ImportConfig restores breakpoints from ExportConfig's JSON. Imported
// breakpoints that originally had a condition are restored unconditional
// (the closure cannot be serialized) — callers wanting a condition back
// must re-attach one via SetBreakpoint.
func (m *BreakpointManager) ImportConfig(config string) error {
	var entries []breakpointConfigEntry
	if err := json.Unmarshal([]byte(config), &entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		bp := &Breakpoint{ID: e.ID, NodeID: e.NodeID, Enabled: e.Enabled, CreatedAt: time.Now()}
		m.byNode[e.NodeID] = append(m.byNode[e.NodeID], bp)
		m.byID[e.ID] = bp
	}
	return nil
}
