// Package session implements the SessionManager component:
// multi-agent coordination sessions with membership, an append-only message
// log, and a decision/voting log.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "session"

// Config holds the session manager's tunables.
type Config struct {
	SessionTimeout time.Duration
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{SessionTimeout: 30 * time.Minute}
}

// Manager is the SessionManager: membership changes and message appends are
// serialized per-session via one mutex per entry.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*entry

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// New constructs a Manager. Call Start to run the session-timeout reaper.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, sessions: make(map[string]*entry), stopCh: make(chan struct{})}
}

// Start launches the background reaper that fails sessions idle longer
// than SessionTimeout with no activity.
func (m *Manager) Start(tick time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.reapTimedOut(time.Now())
			}
		}
	}()
}

// Stop halts the reaper and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Create opens a new Active session over topic with the given initiator
// and participant set.
func (m *Manager) Create(topic, initiator string, participants []string) (*models.Session, error) {
	if topic == "" || len(participants) == 0 {
		return nil, coordinationerr.New(component, "Create", coordinationerr.KindInvalidArgument)
	}
	now := time.Now()
	s := &models.Session{
		ID:           uuid.NewString(),
		Topic:        topic,
		Status:       models.SessionActive,
		Participants: append([]string(nil), participants...),
		Initiator:    initiator,
		CreatedAt:    now,
		LastUpdated:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s}
	m.mu.Unlock()
	return s.Clone(), nil
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, coordinationerr.NotFound(component, "lookup", sessionID)
	}
	return e, nil
}

// Get returns a defensive copy of sessionID.
func (m *Manager) Get(sessionID string) (*models.Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Join adds agentID to sessionID's participant set. A no-op (not an error)
// if agentID is already a participant.
func (m *Manager) Join(sessionID, agentID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if isTerminal(e.session.Status) {
		return coordinationerr.Newf(component, "Join", coordinationerr.KindInvalidTransition, sessionID, nil)
	}
	if !e.session.HasParticipant(agentID) {
		e.session.Participants = append(e.session.Participants, agentID)
	}
	e.session.LastUpdated = time.Now()
	return nil
}

// Leave removes agentID from sessionID's participant set.
func (m *Manager) Leave(sessionID, agentID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.session.Participants[:0:0]
	for _, p := range e.session.Participants {
		if p != agentID {
			filtered = append(filtered, p)
		}
	}
	e.session.Participants = filtered
	e.session.LastUpdated = time.Now()
	return nil
}

// SendMessage appends a SessionMessage to sessionID's log. Rejected once
// the session has reached a terminal status.
func (m *Manager) SendMessage(sessionID, from, content string) (*models.SessionMessage, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if isTerminal(e.session.Status) {
		return nil, coordinationerr.Newf(component, "SendMessage", coordinationerr.KindInvalidTransition, sessionID, nil)
	}
	msg := models.SessionMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		From:      from,
		Content:   content,
		Timestamp: time.Now(),
	}
	e.session.Messages = append(e.session.Messages, msg)
	e.session.LastUpdated = time.Now()
	return &msg, nil
}

// RecordDecision resolves votes into an outcome per mechanism, appends the
// Decision to the session's decision log, and transitions the session to
// Completed.
func (m *Manager) RecordDecision(sessionID, question string, mechanism models.VotingMechanism, votes []models.Vote, quorum int) (*models.Decision, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if isTerminal(e.session.Status) {
		return nil, coordinationerr.Newf(component, "RecordDecision", coordinationerr.KindInvalidTransition, sessionID, nil)
	}

	outcome, vetoBy := Resolve(mechanism, votes, quorum)
	now := time.Now()
	d := models.Decision{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Question:   question,
		Mechanism:  mechanism,
		Votes:      append([]models.Vote(nil), votes...),
		Outcome:    outcome,
		Quorum:     quorum,
		VetoBy:     vetoBy,
		CreatedAt:  now,
		ResolvedAt: now,
	}
	e.session.Decisions = append(e.session.Decisions, d)
	e.session.Status = models.SessionCompleted
	e.session.EndedAt = now
	e.session.LastUpdated = now
	return &d, nil
}

// reapTimedOut fails every Active/Pending session whose LastUpdated is
// older than SessionTimeout.
func (m *Manager) reapTimedOut(now time.Time) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if !isTerminal(e.session.Status) && m.cfg.SessionTimeout > 0 &&
			now.Sub(e.session.LastUpdated) > m.cfg.SessionTimeout {
			e.session.Status = models.SessionFailed
			e.session.EndedAt = now
			e.session.LastUpdated = now
		}
		e.mu.Unlock()
	}
}

func isTerminal(s models.SessionStatus) bool {
	switch s {
	case models.SessionCompleted, models.SessionCancelled, models.SessionFailed:
		return true
	default:
		return false
	}
}

// Counts returns the number of non-terminal sessions and the total held.
func (m *Manager) Counts() (active, total int) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	total = len(entries)
	for _, e := range entries {
		e.mu.Lock()
		if !isTerminal(e.session.Status) {
			active++
		}
		e.mu.Unlock()
	}
	return active, total
}
