package models

import "time"

// Session is a multi-agent coordination session: a group of agents working
// a shared decision to a voted outcome.
type Session struct {
	ID           string           `json:"id"`
	Topic        string           `json:"topic"`
	Status       SessionStatus    `json:"status"`
	Participants []string         `json:"participants"`
	Initiator    string           `json:"initiator"`
	Messages     []SessionMessage `json:"messages,omitempty"`
	Decisions    []Decision       `json:"decisions,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	LastUpdated  time.Time        `json:"last_updated"`
	EndedAt      time.Time        `json:"ended_at,omitempty"`
	Deadline     time.Time        `json:"deadline,omitempty"`
}

// Clone returns a copy of s safe to hand to callers outside the session
// manager's lock.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.Messages = append([]SessionMessage(nil), s.Messages...)
	c.Decisions = append([]Decision(nil), s.Decisions...)
	return &c
}

// HasParticipant reports whether agentID is part of s.
func (s *Session) HasParticipant(agentID string) bool {
	for _, p := range s.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// SessionMessage is one message exchanged within a Session's own thread,
// distinct from the general Message routed by the message router.
type SessionMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is a question put to a Session's participants for a vote.
type Decision struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Question   string          `json:"question"`
	Mechanism  VotingMechanism `json:"mechanism"`
	Votes      []Vote          `json:"votes,omitempty"`
	Outcome    DecisionOutcome `json:"outcome,omitempty"`
	Quorum     int             `json:"quorum"`
	VetoBy     []string        `json:"veto_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

// Resolved reports whether d has already reached an Outcome.
func (d *Decision) Resolved() bool { return d.Outcome != "" }

// Vote is one participant's ballot on a Decision.
type Vote struct {
	AgentID   string    `json:"agent_id"`
	Value     VoteValue `json:"value"`
	Weight    float64   `json:"weight"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
