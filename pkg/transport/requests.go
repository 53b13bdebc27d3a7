package transport

import (
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// UpdateAgentStatusRequest is the HTTP request body for PUT /api/v1/agents/:id/status.
type UpdateAgentStatusRequest struct {
	Status models.AgentStatus `json:"status"`
	Health models.AgentHealth `json:"health"`
	Task   string             `json:"task,omitempty"`
}

// HeartbeatRequest is the HTTP request body for POST /api/v1/agents/:id/heartbeat.
type HeartbeatRequest struct {
	Status  models.AgentStatus   `json:"status"`
	Health  models.AgentHealth   `json:"health"`
	Task    string               `json:"task,omitempty"`
	Metrics *models.AgentMetrics `json:"metrics,omitempty"`
}

// CreateSessionRequest is the HTTP request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	Topic        string   `json:"topic"`
	Initiator    string   `json:"initiator"`
	Participants []string `json:"participants"`
}

// SessionMemberRequest is the HTTP request body for join/leave session calls.
type SessionMemberRequest struct {
	AgentID string `json:"agent_id"`
}

// SessionMessageRequest is the HTTP request body for POST /api/v1/sessions/:id/messages.
type SessionMessageRequest struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// RecordDecisionRequest is the HTTP request body for POST /api/v1/sessions/:id/decisions.
type RecordDecisionRequest struct {
	Question  string                 `json:"question"`
	Mechanism models.VotingMechanism `json:"mechanism"`
	Votes     []models.Vote          `json:"votes"`
	Quorum    int                    `json:"quorum"`
}

// RequestResourceRequest is the HTTP request body for POST /api/v1/resources/:id/request.
type RequestResourceRequest struct {
	AgentID        string `json:"agent_id"`
	TimeoutSeconds int    `json:"timeout_s"`
}

// ReleaseResourceRequest is the HTTP request body for POST /api/v1/resources/:id/release.
type ReleaseResourceRequest struct {
	AgentID string `json:"agent_id"`
}

// DetectConflictRequest is the HTTP request body for POST /api/v1/conflicts/detect.
type DetectConflictRequest struct {
	ResourceID  string              `json:"resource_id"`
	Agents      []string            `json:"agents"`
	Type        models.ConflictType `json:"type"`
	Description string              `json:"description"`
}

// ResolveConflictRequest is the HTTP request body for POST /api/v1/conflicts/:id/resolve.
type ResolveConflictRequest struct {
	Strategy       models.ResolutionStrategy `json:"strategy"`
	ResolutionData string                    `json:"resolution_data,omitempty"`
}
