package transport

import (
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Agents  int    `json:"agents"`
}

// StatusResponse is the generic {success, message} payload for mutations.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AgentResponse wraps a single agent lookup.
type AgentResponse struct {
	Success bool          `json:"success"`
	Agent   *models.Agent `json:"agent_info,omitempty"`
}

// AgentListResponse wraps GetAllAgents.
type AgentListResponse struct {
	Agents []*models.Agent `json:"agents"`
}

// SendMessageResponse reports the per-recipient outcome of a send.
type SendMessageResponse struct {
	Success   bool                    `json:"success"`
	MessageID string                  `json:"message_id"`
	Delivery  []models.DeliveryRecord `json:"delivery"`
	Error     string                  `json:"error,omitempty"`
}

// MessageHistoryResponse wraps GetMessageHistory.
type MessageHistoryResponse struct {
	Messages []models.Message `json:"messages"`
}

// SessionResponse wraps session creation/lookup.
type SessionResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id,omitempty"`
	Session   *models.Session `json:"session,omitempty"`
}

// DecisionResponse wraps a recorded decision.
type DecisionResponse struct {
	Success  bool             `json:"success"`
	Decision *models.Decision `json:"decision,omitempty"`
}

// RequestResourceResponse reports a lock acquisition attempt.
type RequestResourceResponse struct {
	Success  bool   `json:"success"`
	Acquired bool   `json:"acquired"`
	Outcome  string `json:"outcome"`
}

// ConflictResponse wraps a detected conflict.
type ConflictResponse struct {
	Success  bool             `json:"success"`
	Conflict *models.Conflict `json:"conflict,omitempty"`
}

// ConflictListResponse wraps GetConflicts.
type ConflictListResponse struct {
	Conflicts []models.Conflict `json:"conflicts"`
}

// HeartbeatResponse carries drained pending messages back to the agent.
type HeartbeatResponse struct {
	Success         bool             `json:"success"`
	PendingMessages []models.Message `json:"pending_messages"`
}
