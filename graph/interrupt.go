package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InterruptMode selects when a breakpoint-style pause happens relative to
// a node's execution.
type InterruptMode int

const (
	InterruptBefore InterruptMode = iota
	InterruptAfter
	InterruptBoth
)

// ApprovalDecisionKind is the resolution a human (or automation) applies
// to a pending InterruptHandle.
type ApprovalDecisionKind int

const (
	DecisionContinue ApprovalDecisionKind = iota
	DecisionRetry
	DecisionSkip
	DecisionAbort
	DecisionRedirect
)

// ApprovalDecision carries the decision kind plus its payload: Reason for
// Abort, RedirectTo for Redirect.
type ApprovalDecision struct {
	Kind       ApprovalDecisionKind
	Reason     string
	RedirectTo string
}

// InterruptHandle is a single paused-execution point awaiting resolution.
type InterruptHandle struct {
	ID            string
	NodeID        string
	Timestamp     time.Time
	StateSnapshot State
	Timeout       time.Duration
	Mode          InterruptMode
}

// InterruptManager tracks pending interrupts and lets a caller block on
// the next one.
type InterruptManager struct {
	mu             sync.Mutex
	pending        map[string]*InterruptHandle
	waiters        []chan *InterruptHandle
	defaultTimeout time.Duration
}

func NewInterruptManager() *InterruptManager {
	return &InterruptManager{
		pending:        map[string]*InterruptHandle{},
		defaultTimeout: 5 * time.Minute,
	}
}

// SetDefaultTimeout changes the timeout newly created handles inherit.
func (m *InterruptManager) SetDefaultTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultTimeout = d
}

// CreateInterrupt registers a new pending handle and wakes one blocked
// WaitForInterrupt caller, if any.
func (m *InterruptManager) CreateInterrupt(nodeID string, state State, mode InterruptMode) *InterruptHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := &InterruptHandle{
		ID:            uuid.NewString(),
		NodeID:        nodeID,
		Timestamp:     time.Now(),
		StateSnapshot: state.Clone(),
		Timeout:       m.defaultTimeout,
		Mode:          mode,
	}
	m.pending[handle.ID] = handle

	if len(m.waiters) > 0 {
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		ch <- handle
		close(ch)
	}
	return handle
}

// WaitForInterrupt blocks until a pending interrupt exists (returning it
// immediately if one already does) or timeout elapses, in which case it
// returns (nil, false).
func (m *InterruptManager) WaitForInterrupt(timeout time.Duration) (*InterruptHandle, bool) {
	m.mu.Lock()
	for _, h := range m.pending {
		m.mu.Unlock()
		return h, true
	}
	ch := make(chan *InterruptHandle, 1)
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	if timeout <= 0 {
		h, ok := <-ch
		return h, ok
	}
	select {
	case h, ok := <-ch:
		return h, ok
	case <-time.After(timeout):
		return nil, false
	}
}

// Approve resolves handleID with decision, removing it from pending.
// Abort surfaces ErrInterruptAborted; all other decisions are recorded
// for the executor to act on via the returned ApprovalDecision.
func (m *InterruptManager) Approve(handleID string, decision ApprovalDecision) (ApprovalDecision, error) {
	m.mu.Lock()
	_, ok := m.pending[handleID]
	if ok {
		delete(m.pending, handleID)
	}
	m.mu.Unlock()

	if !ok {
		return ApprovalDecision{}, ErrHandleNotFound
	}
	if decision.Kind == DecisionAbort {
		return decision, ErrInterruptAborted
	}
	return decision, nil
}

// ModifyAndApprove replaces the pending handle's state snapshot with
// modifiedState before applying decision.
func (m *InterruptManager) ModifyAndApprove(handleID string, modifiedState State, decision ApprovalDecision) (ApprovalDecision, error) {
	m.mu.Lock()
	handle, ok := m.pending[handleID]
	if ok {
		handle.StateSnapshot = modifiedState.Clone()
	}
	m.mu.Unlock()

	if !ok {
		return ApprovalDecision{}, ErrHandleNotFound
	}
	return m.Approve(handleID, decision)
}

// PendingCount reports how many interrupts are currently awaiting resolution.
func (m *InterruptManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ClearPending discards every pending handle without resolving it.
func (m *InterruptManager) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = map[string]*InterruptHandle{}
}

// Get returns the pending handle by id, if still pending.
func (m *InterruptManager) Get(handleID string) (*InterruptHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.pending[handleID]
	return h, ok
}
