package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkflowSnapshot is a resumable point-in-time capture of a workflow
// execution.
type WorkflowSnapshot struct {
	ID                string
	ExecutionID       string
	GraphName         string
	LastCompletedNode string
	NextNode          string
	State             State
	ExecutionPath     []string
	Timestamp         time.Time
	Metadata          map[string]any
}

// NewWorkflowSnapshot creates a fresh snapshot at node lastNode.
func NewWorkflowSnapshot(executionID, graphName, lastNode string, state State) *WorkflowSnapshot {
	return &WorkflowSnapshot{
		ID:                uuid.NewString(),
		ExecutionID:       executionID,
		GraphName:         graphName,
		LastCompletedNode: lastNode,
		State:             state.Clone(),
		Timestamp:         time.Now(),
		Metadata:          map[string]any{},
	}
}

// UpdateProgress appends the previously-completed node to ExecutionPath
// and advances LastCompletedNode, pushing the OLD last-completed node
// before overwriting it.
func (s *WorkflowSnapshot) UpdateProgress(node string) {
	s.ExecutionPath = append(s.ExecutionPath, s.LastCompletedNode)
	s.LastCompletedNode = node
	s.Timestamp = time.Now()
}

// ResumptionPoint is a named, possibly-modifiable pause point within a
// node's execution.
type ResumptionPoint struct {
	NodeID         string
	StateSnapshot  State
	CanModifyState bool
	CreatedAt      time.Time
}

// ResumptionManager tracks suspendable/resumable executions: full
// snapshots by id, per-node resumption points, and a suspended/running
// status table.
type ResumptionManager struct {
	mu               sync.Mutex
	snapshots        map[string]*WorkflowSnapshot
	resumptionPoints map[string]*ResumptionPoint
	statuses         map[string]ExecutionStatus
}

// ExecutionStatus is the coarse run-state ResumptionManager tracks per
// execution id.
type ExecutionStatus int

const (
	StatusRunning ExecutionStatus = iota
	StatusSuspended
	StatusCompleted
	StatusFailed
)

func NewResumptionManager() *ResumptionManager {
	return &ResumptionManager{
		snapshots:        map[string]*WorkflowSnapshot{},
		resumptionPoints: map[string]*ResumptionPoint{},
		statuses:         map[string]ExecutionStatus{},
	}
}

// SaveResumptionPoint snapshots state at nodeID for executionID, storing
// both a full WorkflowSnapshot and a lighter-weight ResumptionPoint keyed
// by node.
func (m *ResumptionManager) SaveResumptionPoint(executionID, graphName, nodeID string, state State) *WorkflowSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := NewWorkflowSnapshot(executionID, graphName, nodeID, state)
	m.snapshots[snapshot.ID] = snapshot

	m.resumptionPoints[nodeID] = &ResumptionPoint{
		NodeID:         nodeID,
		StateSnapshot:  state.Clone(),
		CanModifyState: true,
		CreatedAt:      time.Now(),
	}
	return snapshot
}

func (m *ResumptionManager) LoadSnapshot(snapshotID string) (*WorkflowSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[snapshotID]
	return s, ok
}

func (m *ResumptionManager) ListSnapshots() []*WorkflowSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*WorkflowSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	return out
}

func (m *ResumptionManager) DeleteSnapshot(snapshotID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[snapshotID]; !ok {
		return false
	}
	delete(m.snapshots, snapshotID)
	return true
}

func (m *ResumptionManager) GetResumptionPoint(nodeID string) (*ResumptionPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.resumptionPoints[nodeID]
	return p, ok
}

func (m *ResumptionManager) SuspendExecution(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[executionID] = StatusSuspended
}

func (m *ResumptionManager) MarkResumed(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[executionID] = StatusRunning
}

func (m *ResumptionManager) IsSuspended(executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[executionID] == StatusSuspended
}

// CreateFromCheckpoint builds a WorkflowSnapshot from a Checkpointer entry,
// so a checkpoint saved for crash recovery can also serve as a resumption
// point for interactive/debugger resumption.
func (m *ResumptionManager) CreateFromCheckpoint(cp *Checkpointer, threadID, checkpointID, executionID string) (*WorkflowSnapshot, error) {
	checkpoint, found, err := (*cp).Load(threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCheckpointNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := NewWorkflowSnapshot(executionID, "workflow", threadID, checkpoint.StatePayload)
	m.snapshots[snapshot.ID] = snapshot
	return snapshot, nil
}

// CleanupOldSnapshots removes every snapshot older than maxAge, returning
// the count removed.
func (m *ResumptionManager) CleanupOldSnapshots(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, s := range m.snapshots {
		if s.Timestamp.Before(cutoff) {
			delete(m.snapshots, id)
			removed++
		}
	}
	return removed
}
