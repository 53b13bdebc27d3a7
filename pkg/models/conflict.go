package models

import "time"

// Conflict is a detected contention between two or more agents over a
// resource, assignment, or dependency version.
type Conflict struct {
	ID          string             `json:"id"`
	Type        ConflictType       `json:"type"`
	Severity    ConflictSeverity   `json:"severity"`
	Description string             `json:"description"`
	Parties     []string           `json:"parties"`
	ResourceID  string             `json:"resource_id,omitempty"`
	Strategy    ResolutionStrategy `json:"strategy,omitempty"`
	Resolved    bool               `json:"resolved"`
	Resolution  string             `json:"resolution,omitempty"`
	DetectedAt  time.Time          `json:"detected_at"`
	ResolvedAt  time.Time          `json:"resolved_at,omitempty"`
}
