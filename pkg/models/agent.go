package models

import "time"

// Agent is a registered coordination participant: identity, lifecycle
// state, health, capabilities, and performance metrics.
type Agent struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Status        AgentStatus       `json:"status"`
	Health        AgentHealth       `json:"health"`
	Capabilities  map[string]bool   `json:"capabilities"`
	CurrentTask   string            `json:"current_task,omitempty"`
	Priority      uint8             `json:"priority"`
	Version       string            `json:"version"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Metrics       AgentMetrics      `json:"metrics"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUpdated   time.Time         `json:"last_updated"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Lifecycle is the narrow Idle/Working/Blocked/Completed state machine
	// from the original TLA+ specification; it governs transition legality
	// in pkg/registry and is distinct from the ten-value wire Status above.
	Lifecycle AgentLifecycle `json:"lifecycle"`
	// BlockedSince is set when Lifecycle enters LifecycleBlocked and cleared
	// otherwise; the registry's reaper promotes agents blocked longer than
	// max_block_time back to Idle.
	BlockedSince time.Time `json:"blocked_since,omitempty"`
}

// AgentMetrics tracks an agent's cumulative performance.
type AgentMetrics struct {
	TasksCompleted  uint64        `json:"tasks_completed"`
	TasksFailed     uint64        `json:"tasks_failed"`
	OperationsCount uint64        `json:"operations_count"`
	TotalWorkTime   time.Duration `json:"total_work_time"`
	RetryCount      uint64        `json:"retry_count"`
	AverageResponse time.Duration `json:"average_response_time"`
}

// Clone returns a deep-enough copy for safe return across the registry's
// lock boundary (capabilities/metadata maps are copied; nothing else in
// Agent is a reference type callers could mutate through).
func (a *Agent) Clone() *Agent {
	c := *a
	if a.Capabilities != nil {
		c.Capabilities = make(map[string]bool, len(a.Capabilities))
		for k, v := range a.Capabilities {
			c.Capabilities[k] = v
		}
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// AgentInfo is the registration payload for Register — the caller-supplied
// fields of Agent, before the registry assigns lifecycle/timestamps.
type AgentInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Priority     uint8             `json:"priority"`
	Version      string            `json:"version"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// StateTransition is one audit entry in an agent's bounded history ring.
type StateTransition struct {
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	From      AgentLifecycle `json:"from,omitempty"`
	To        AgentLifecycle `json:"to"`
	Reason    string         `json:"reason"`
}
