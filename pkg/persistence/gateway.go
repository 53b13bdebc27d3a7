// Package persistence provides the pluggable PersistenceGateway: a narrow
// durable-store contract for consensus state and log entries, with
// in-memory, file, Redis (kv), and PostgreSQL (db) implementations.
package persistence

import (
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// Gateway is the durable-store contract consumed by pkg/consensus. Every
// implementation must be safe for concurrent use. The memory backend drops
// durability guarantees and exists for tests and single-process runs.
type Gateway interface {
	// LoadState returns nodeID's persisted role state; found reports
	// whether any state was ever saved for that node.
	LoadState(nodeID string) (*models.ConsensusState, bool, error)
	// SaveState overwrites nodeID's persisted role state.
	SaveState(nodeID string, state models.ConsensusState) error
	// AppendLog appends one entry to nodeID's log. Implementations do not
	// re-validate index density; pkg/consensus enforces it before calling.
	AppendLog(nodeID string, entry models.ConsensusEntry) error
	// Log returns nodeID's full persisted log in index order.
	Log(nodeID string) ([]models.ConsensusEntry, error)
	// MarkCommitted stamps committed_at on every entry up to index that has
	// no committed_at yet.
	MarkCommitted(nodeID string, index int, at time.Time) error
	// MarkApplied stamps applied_at on every entry up to index that has no
	// applied_at yet.
	MarkApplied(nodeID string, index int, at time.Time) error
	// Snapshot returns a point-in-time copy of everything the gateway
	// holds, for backups and debugging.
	Snapshot() (*SnapshotData, error)
	// Close releases backend connections. Idempotent.
	Close() error
}

// SnapshotData is a full point-in-time export of a gateway's contents.
type SnapshotData struct {
	TakenAt time.Time                         `json:"taken_at"`
	States  map[string]models.ConsensusState  `json:"states"`
	Logs    map[string][]models.ConsensusEntry `json:"logs"`
}
