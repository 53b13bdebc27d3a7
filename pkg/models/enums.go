// Package models holds the wire and in-memory data model shared by every
// coordination component: agents, messages, resources, sessions, conflicts,
// lock files, and consensus state.
package models

// AgentStatus reports an agent's lifecycle/operational status. It is the
// full ten-value wire enum from the RPC surface; only a narrower subset
// (Idle/Working/Blocked/Completed, see AgentLifecycle) is subject to the
// state-machine transition rules enforced by the registry.
type AgentStatus string

const (
	AgentStatusIdle          AgentStatus = "idle"
	AgentStatusBusy          AgentStatus = "busy"
	AgentStatusWorking       AgentStatus = "working"
	AgentStatusBlocked       AgentStatus = "blocked"
	AgentStatusCollaborating AgentStatus = "collaborating"
	AgentStatusMaintenance   AgentStatus = "maintenance"
	AgentStatusStarting      AgentStatus = "starting"
	AgentStatusShuttingDown  AgentStatus = "shutting_down"
	AgentStatusOffline       AgentStatus = "offline"
	AgentStatusError         AgentStatus = "error"
	// There is no AgentStatusCompleted: Completed is the terminal value of
	// the narrow lifecycle machine only (see AgentLifecycle). No wire status
	// maps onto it, and the registry does not remove agents on reaching it.
)

// AgentHealth reports an agent's health independent of its operational status.
type AgentHealth string

const (
	AgentHealthHealthy   AgentHealth = "healthy"
	AgentHealthDegraded  AgentHealth = "degraded"
	AgentHealthUnhealthy AgentHealth = "unhealthy"
	AgentHealthOffline   AgentHealth = "offline"
)

// AgentLifecycle is the narrow Idle/Working/Blocked/Completed state machine
// from the original TLA+ specification. It governs transition legality;
// AgentStatus carries the full reporting-only enum alongside it.
type AgentLifecycle string

const (
	LifecycleIdle      AgentLifecycle = "idle"
	LifecycleWorking   AgentLifecycle = "working"
	LifecycleBlocked   AgentLifecycle = "blocked"
	LifecycleCompleted AgentLifecycle = "completed"
)

// MessagePriority orders messages within a recipient's queue. Priority does
// not reorder already-queued deliveries for the same recipient; it only
// affects producer-side selection when multiple deliveries race.
type MessagePriority int

const (
	PriorityLow MessagePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
	PriorityEmergency
)

// MessageType enumerates the coordination verbs a Message may carry.
type MessageType string

const (
	MessageTaskAssignment   MessageType = "task_assignment"
	MessageTaskCompletion   MessageType = "task_completion"
	MessageTaskBlocked      MessageType = "task_blocked"
	MessageResourceRequest  MessageType = "resource_request"
	MessageResourceRelease  MessageType = "resource_release"
	MessageConflictNotice   MessageType = "conflict_notice"
	MessageCoordinationReq  MessageType = "coordination_request"
	MessageStatusUpdate     MessageType = "status_update"
	MessageKnowledgeShare   MessageType = "knowledge_share"
	MessageDecisionRequest  MessageType = "decision_request"
	MessageDecisionResponse MessageType = "decision_response"
	MessageCustom           MessageType = "custom"
)

// DeliveryStatus is the lifecycle of a single (message, recipient) delivery.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryResponded DeliveryStatus = "responded"
)

// SessionStatus is the lifecycle of a coordination Session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// DecisionOutcome is the result recorded for a Session Decision.
type DecisionOutcome string

const (
	OutcomeApproved   DecisionOutcome = "approved"
	OutcomeRejected   DecisionOutcome = "rejected"
	OutcomeDeferred   DecisionOutcome = "deferred"
	OutcomeCompromise DecisionOutcome = "compromise"
	OutcomeEscalated  DecisionOutcome = "escalated"
)

// VoteValue is a single participant's vote on a Decision.
type VoteValue string

const (
	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
	VoteAbstain VoteValue = "abstain"
	VoteDefer   VoteValue = "defer"
)

// VotingMechanism selects the algorithm used to resolve a Decision's votes
// into an outcome. The resolution algorithm itself is pluggable but
// deterministic given the vote set and mechanism (see pkg/session).
type VotingMechanism string

const (
	VotingSimpleMajority    VotingMechanism = "simple_majority"
	VotingWeighted          VotingMechanism = "weighted_voting"
	VotingConsensusWithVeto VotingMechanism = "consensus_with_veto"
	VotingDelegated         VotingMechanism = "delegated_voting"
)

// ConflictType enumerates the origin/shape of a detected Conflict.
type ConflictType string

const (
	ConflictVersion    ConflictType = "version"
	ConflictCapacity   ConflictType = "capacity"
	ConflictPolicy     ConflictType = "policy"
	ConflictTimeout    ConflictType = "timeout"
	ConflictDeadlock   ConflictType = "deadlock"
	ConflictAssignment ConflictType = "assignment"
)

// ConflictSeverity classifies the impact of a Conflict.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// ResolutionStrategy names a deterministic policy for resolving conflicting
// DependencySpec candidates or a detected Conflict. AutomaticDetection picks
// among the others per conflict class; the rest name the policy directly.
type ResolutionStrategy string

const (
	StrategyLatestCompatible ResolutionStrategy = "latest_compatible"
	StrategyPinnedVersion    ResolutionStrategy = "pinned_version"
	StrategyManualResolution ResolutionStrategy = "manual_resolution"
	StrategySmartSelection   ResolutionStrategy = "smart_selection"
	StrategyConservative     ResolutionStrategy = "conservative"
	StrategyAggressive       ResolutionStrategy = "aggressive"
	StrategyHybrid           ResolutionStrategy = "hybrid"
	StrategyHistoryTracking  ResolutionStrategy = "history_tracking"
	StrategyAutomatic        ResolutionStrategy = "automatic_detection"
)

// DependencyType classifies a DependencySpec for tie-breaking and for the
// Hybrid strategy (Conservative for Required, LatestCompatible otherwise).
type DependencyType string

const (
	DepRequired    DependencyType = "required"
	DepPeer        DependencyType = "peer"
	DepOptional    DependencyType = "optional"
	DepDevelopment DependencyType = "development"
	DepBuild       DependencyType = "build"
)

// dependencyTypeRank orders DependencyType for tie-break rule 2:
// Required > Peer > Optional > Development > Build.
// Lower rank wins.
var dependencyTypeRank = map[DependencyType]int{
	DepRequired:    0,
	DepPeer:        1,
	DepOptional:    2,
	DepDevelopment: 3,
	DepBuild:       4,
}

// Rank returns the tie-break rank for d; unknown types sort last.
func (d DependencyType) Rank() int {
	if r, ok := dependencyTypeRank[d]; ok {
		return r
	}
	return len(dependencyTypeRank)
}

// ValidationMode controls how LockResolver reacts to errors while generating
// a lock file.
type ValidationMode string

const (
	ValidationStrict  ValidationMode = "strict"
	ValidationLenient ValidationMode = "lenient"
)

// ConsensusRole is a node's Raft-family role.
type ConsensusRole string

const (
	RoleFollower  ConsensusRole = "follower"
	RoleCandidate ConsensusRole = "candidate"
	RoleLeader    ConsensusRole = "leader"
)

// PersistenceBackend names a PersistenceGateway implementation.
type PersistenceBackend string

const (
	BackendMemory PersistenceBackend = "memory"
	BackendFile   PersistenceBackend = "file"
	BackendKV     PersistenceBackend = "kv"
	BackendDB     PersistenceBackend = "db"
)
