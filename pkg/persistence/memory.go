package persistence

import (
	"sync"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "persistence"

// Memory is the in-process Gateway and the default backend; it holds
// everything in maps behind a RWMutex and provides no durability.
type Memory struct {
	mu     sync.RWMutex
	states map[string]models.ConsensusState
	logs   map[string][]models.ConsensusEntry
}

// NewMemory constructs an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]models.ConsensusState),
		logs:   make(map[string][]models.ConsensusEntry),
	}
}

func (m *Memory) LoadState(nodeID string) (*models.ConsensusState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[nodeID]
	if !ok {
		return nil, false, nil
	}
	return &state, true, nil
}

func (m *Memory) SaveState(nodeID string, state models.ConsensusState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[nodeID] = state
	return nil
}

func (m *Memory) AppendLog(nodeID string, entry models.ConsensusEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[nodeID] = append(m.logs[nodeID], entry)
	return nil
}

func (m *Memory) Log(nodeID string) ([]models.ConsensusEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.logs[nodeID]
	out := make([]models.ConsensusEntry, len(log))
	copy(out, log)
	return out, nil
}

func (m *Memory) MarkCommitted(nodeID string, index int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.logs[nodeID]
	if index >= len(log) {
		return coordinationerr.New(component, "MarkCommitted", coordinationerr.KindInvalidArgument)
	}
	for i := range log {
		if log[i].Index <= index && log[i].CommittedAt.IsZero() {
			log[i].CommittedAt = at
		}
	}
	return nil
}

func (m *Memory) MarkApplied(nodeID string, index int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.logs[nodeID]
	if index >= len(log) {
		return coordinationerr.New(component, "MarkApplied", coordinationerr.KindInvalidArgument)
	}
	for i := range log {
		if log[i].Index <= index && log[i].AppliedAt.IsZero() {
			log[i].AppliedAt = at
		}
	}
	return nil
}

func (m *Memory) Snapshot() (*SnapshotData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &SnapshotData{
		TakenAt: time.Now().UTC(),
		States:  make(map[string]models.ConsensusState, len(m.states)),
		Logs:    make(map[string][]models.ConsensusEntry, len(m.logs)),
	}
	for id, st := range m.states {
		snap.States[id] = st
	}
	for id, log := range m.logs {
		cp := make([]models.ConsensusEntry, len(log))
		copy(cp, log)
		snap.Logs[id] = cp
	}
	return snap, nil
}

func (m *Memory) Close() error { return nil }
