// Package facade wires the coordination components together and exposes the
// operations the RPC surface dispatches to: one constructor-injected struct
// per component, a fixed call order between them, and consolidated stats.
package facade

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/config"
	"github.com/fugue-ai/rhema-coordinator/pkg/conflict"
	"github.com/fugue-ai/rhema-coordinator/pkg/consensus"
	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
	"github.com/fugue-ai/rhema-coordinator/pkg/registry"
	"github.com/fugue-ai/rhema-coordinator/pkg/resources"
	"github.com/fugue-ai/rhema-coordinator/pkg/router"
	"github.com/fugue-ai/rhema-coordinator/pkg/session"
)

const component = "facade"

// Coordinator is the CoordinationFacade: it owns one instance of every
// component and sequences calls between them. No component ever calls
// another directly; cross-component needs are wired as narrow callbacks
// here (lock checks, operational checks, timeout notifications), which
// keeps the lock-acquisition order fixed at the facade boundary.
type Coordinator struct {
	cfg *config.Config

	registry  *registry.Registry
	router    *router.Router
	resources *resources.Manager
	sessions  *session.Manager
	conflicts *conflict.Engine
	consensus *consensus.Core

	// reported dedupes the periodic scanner's findings so the same overlap
	// or deadlock is not re-detected every tick while it persists.
	scanMu   sync.Mutex
	reported map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New wires a Coordinator from cfg. store may be nil for a purely
// in-memory consensus core.
func New(cfg *config.Config, store consensus.Store) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		reported: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}

	c.registry = registry.New(registry.Config{
		MaxConcurrentAgents: cfg.Coordination.MaxConcurrentAgents,
		MaxBlockTime:        cfg.Coordination.MaxBlockTime,
	})

	c.router = router.New(router.Config{
		HistoryCapacity:    cfg.Coordination.MessageHistoryCapacity,
		PerAgentQueueCap:   cfg.Coordination.PerAgentQueueCapacity,
		MaxPendingPerDrain: 50,
	}, c.registry.IsOperational)

	c.resources = resources.New(c.onLockTimeout)
	c.registry.SetLockChecker(c.resources.HasActiveLocks)

	c.sessions = session.New(session.Config{SessionTimeout: cfg.Coordination.SessionTimeout})

	c.conflicts = conflict.New(conflict.Config{
		PrimaryStrategy:        cfg.Conflict.PrimaryStrategy,
		FallbackStrategies:     cfg.Conflict.FallbackStrategies,
		EnableAutoDetection:    cfg.Conflict.EnableAutoDetection,
		TrackHistory:           cfg.Conflict.TrackHistory,
		MaxAttempts:            cfg.Conflict.MaxAttempts,
		AllowUserPrompts:       cfg.Conflict.AllowUserPrompts,
		PreferStable:           cfg.Conflict.PreferStable,
		StrictPinning:          cfg.Conflict.StrictPinning,
		CompatibilityThreshold: cfg.Conflict.CompatibilityThreshold,
		ParallelResolution:     cfg.Conflict.ParallelResolution,
		MaxParallelThreads:     cfg.Conflict.MaxParallelThreads,
		TimeoutSeconds:         cfg.Conflict.TimeoutSeconds,
	})

	c.consensus = consensus.New(store, consensus.DefaultConfig())

	return c
}

// Start launches every component's background reaper at the configured
// heartbeat cadence, plus the periodic conflict scanner.
func (c *Coordinator) Start() {
	tick := c.cfg.Coordination.HeartbeatInterval
	c.registry.Start(tick)
	c.resources.Start(tick)
	c.sessions.Start(tick)
	c.consensus.Start(tick)

	if c.cfg.Conflict.EnableAutoDetection {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			for {
				select {
				case <-c.stopCh:
					return
				case <-ticker.C:
					c.runScan()
				}
			}
		}()
	}
}

// Stop halts all background reapers. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	c.registry.Stop()
	c.resources.Stop()
	c.sessions.Stop()
	c.consensus.Stop()
}

// runScan is one pass of the periodic scanner: overlapping task
// assignments across agents, and deadlock cycles in the wait-for graph
// derived from current locks plus outstanding failed requests.
func (c *Coordinator) runScan() {
	// Assignment overlap: two or more operational agents working the same
	// non-empty task.
	byTask := make(map[string][]string)
	for _, a := range c.registry.ListAll() {
		if a.CurrentTask == "" {
			continue
		}
		byTask[a.CurrentTask] = append(byTask[a.CurrentTask], a.ID)
	}
	for task, agents := range byTask {
		if len(agents) < 2 {
			continue
		}
		sort.Strings(agents)
		key := "assignment|" + task + "|" + strings.Join(agents, ",")
		if c.markReported(key) {
			_, _ = c.conflicts.Detect("", agents, models.ConflictAssignment,
				"overlapping assignment: "+task)
		}
	}

	// Deadlock: a cycle in the wait-for graph means every agent on it is
	// waiting on a resource held by the next.
	for _, cycle := range waitCycles(c.resources.WaitForGraph()) {
		if len(cycle) < 2 {
			continue
		}
		sort.Strings(cycle)
		key := "deadlock|" + strings.Join(cycle, ",")
		if c.markReported(key) {
			_, _ = c.conflicts.Detect("", cycle, models.ConflictDeadlock,
				"wait-for cycle between agents")
		}
	}
}

// markReported returns true exactly once per key.
func (c *Coordinator) markReported(key string) bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	if c.reported[key] {
		return false
	}
	c.reported[key] = true
	return true
}

// waitCycles finds every distinct cycle in the agent wait-for graph via
// DFS with an explicit recursion stack.
func waitCycles(graph map[string][]string) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))
	var cycles [][]string
	var stack []string

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range graph[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				for i, n := range stack {
					if n == next {
						cycles = append(cycles, append([]string(nil), stack[i:]...))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// onLockTimeout is the ResourceManager's reaper callback: the revoked
// owner gets a ConflictNotification(type=Timeout) on its stream.
func (c *Coordinator) onLockTimeout(resourceID, agentID string) {
	c.router.Notify(agentID, models.Message{
		Type:    models.MessageConflictNotice,
		Sender:  "coordinator",
		Content: "resource lock timed out",
		Payload: map[string]any{
			"resource_id":   resourceID,
			"conflict_type": string(models.ConflictTimeout),
		},
	})
}

// --- Agents ---

// RegisterAgent validates and registers a new agent.
func (c *Coordinator) RegisterAgent(info models.AgentInfo) (*models.Agent, error) {
	if info.ID == "" {
		return nil, coordinationerr.New(component, "RegisterAgent", coordinationerr.KindInvalidArgument)
	}
	return c.registry.Register(info)
}

// UnregisterAgent removes an agent; it fails while the agent owns any
// resource lock. Any outstanding waits the agent recorded are forgotten.
func (c *Coordinator) UnregisterAgent(agentID string) error {
	if err := c.registry.Unregister(agentID); err != nil {
		return err
	}
	c.resources.DropWaiter(agentID)
	return nil
}

// UpdateAgentStatus applies a status/health/task update under the narrow
// lifecycle machine's transition rules.
func (c *Coordinator) UpdateAgentStatus(agentID string, status models.AgentStatus, health models.AgentHealth, task string) error {
	return c.registry.UpdateStatus(agentID, status, health, task)
}

// GetAgentInfo returns one agent by id.
func (c *Coordinator) GetAgentInfo(agentID string) (*models.Agent, error) {
	return c.registry.Get(agentID)
}

// GetAllAgents returns every registered agent.
func (c *Coordinator) GetAllAgents() []*models.Agent {
	return c.registry.ListAll()
}

// Heartbeat refreshes an agent's liveness and drains up to 50 pending
// messages for cooperative pull.
func (c *Coordinator) Heartbeat(agentID string, status models.AgentStatus, health models.AgentHealth, task string, metrics *models.AgentMetrics) ([]models.Message, error) {
	if err := c.registry.Heartbeat(agentID, status, health, task, metrics); err != nil {
		return nil, err
	}
	return c.router.DrainPending(agentID), nil
}

// --- Messages ---

// SendMessage routes a message; at least one recipient must be listed.
func (c *Coordinator) SendMessage(msg models.Message) (router.SendResult, error) {
	result, err := c.router.Send(msg.Sender, msg)
	if err != nil {
		return result, err
	}
	// A ConflictNotification observed on the router is the second conflict
	// detection source; record it when auto-detection is on and at least
	// two parties are involved.
	if msg.Type == models.MessageConflictNotice && c.cfg.Conflict.EnableAutoDetection {
		parties := append([]string{msg.Sender}, msg.Recipients...)
		if len(parties) >= 2 {
			resourceID := ""
			if msg.Payload != nil {
				if rid, ok := msg.Payload["resource_id"].(string); ok {
					resourceID = rid
				}
			}
			_, _ = c.conflicts.Detect(resourceID, parties, models.ConflictPolicy, msg.Content)
		}
	}
	return result, nil
}

// GetMessageHistory returns up to limit recent messages, optionally
// filtered to ones involving agentID.
func (c *Coordinator) GetMessageHistory(limit int, agentID string) []models.Message {
	return c.router.History(limit, agentID)
}

// Subscribe opens agentID's message stream; the channel closes when ctx is
// cancelled.
func (c *Coordinator) Subscribe(ctx context.Context, agentID string) (<-chan models.Message, error) {
	return c.router.Subscribe(ctx, agentID)
}

// MarkResponded records a reply to a delivered message for response-time
// metrics.
func (c *Coordinator) MarkResponded(messageID, recipient string) {
	c.router.MarkResponded(messageID, recipient, time.Now())
}

// --- Sessions ---

// CreateSession opens a coordination session.
func (c *Coordinator) CreateSession(topic, initiator string, participants []string) (*models.Session, error) {
	return c.sessions.Create(topic, initiator, participants)
}

// JoinSession adds agentID to a session.
func (c *Coordinator) JoinSession(sessionID, agentID string) error {
	return c.sessions.Join(sessionID, agentID)
}

// LeaveSession removes agentID from a session.
func (c *Coordinator) LeaveSession(sessionID, agentID string) error {
	return c.sessions.Leave(sessionID, agentID)
}

// SendSessionMessage appends a message to a session's ordered log.
func (c *Coordinator) SendSessionMessage(sessionID, from, content string) (*models.SessionMessage, error) {
	return c.sessions.SendMessage(sessionID, from, content)
}

// GetSession returns one session by id.
func (c *Coordinator) GetSession(sessionID string) (*models.Session, error) {
	return c.sessions.Get(sessionID)
}

// RecordDecision resolves a vote set under the chosen mechanism and appends
// the decision to the session.
func (c *Coordinator) RecordDecision(sessionID, question string, mechanism models.VotingMechanism, votes []models.Vote, quorum int) (*models.Decision, error) {
	return c.sessions.RecordDecision(sessionID, question, mechanism, votes, quorum)
}

// --- Resources ---

// AddResource registers a capacity-bounded resource.
func (c *Coordinator) AddResource(r models.Resource) error {
	return c.resources.AddResource(r)
}

// RemoveResource drops a resource and its locks.
func (c *Coordinator) RemoveResource(resourceID string) error {
	return c.resources.RemoveResource(resourceID)
}

// RequestResource attempts to acquire a lock on resourceID for agentID.
// Contention (AtCapacity) is the first conflict detection source: when
// auto-detection is on, a capacity conflict is recorded between the
// requester and the current holders.
func (c *Coordinator) RequestResource(resourceID, agentID string, timeout time.Duration) (resources.RequestOutcome, error) {
	outcome, err := c.resources.Request(resourceID, agentID, timeout)
	if err != nil {
		return outcome, err
	}
	if outcome == resources.AtCapacity && c.cfg.Conflict.EnableAutoDetection {
		parties := append([]string{agentID}, c.resources.Holders(resourceID)...)
		if len(parties) >= 2 {
			_, _ = c.conflicts.Detect(resourceID, parties, models.ConflictCapacity, "resource at capacity")
		}
	}
	return outcome, nil
}

// ReleaseResource releases agentID's lock on resourceID.
func (c *Coordinator) ReleaseResource(resourceID, agentID string) error {
	return c.resources.Release(resourceID, agentID)
}

// GetResource returns one resource with its current usage.
func (c *Coordinator) GetResource(resourceID string) (*models.Resource, error) {
	return c.resources.Get(resourceID)
}

// --- Conflicts ---

// DetectConflict records a conflict reported by an external observer such
// as an operator; the periodic scanner records its findings directly.
func (c *Coordinator) DetectConflict(resourceID string, agents []string, typ models.ConflictType, description string) (*models.Conflict, error) {
	return c.conflicts.Detect(resourceID, agents, typ, description)
}

// ResolveConflict marks a conflict resolved under the given strategy.
func (c *Coordinator) ResolveConflict(conflictID string, strategy models.ResolutionStrategy, resolutionData string) error {
	return c.conflicts.Resolve(conflictID, strategy, resolutionData)
}

// GetConflicts lists conflicts, optionally filtered by resource or agent.
func (c *Coordinator) GetConflicts(resourceID, agentID string) []models.Conflict {
	return c.conflicts.List(resourceID, agentID)
}

// --- Consensus ---

// Consensus exposes the consensus core for callers that speak the
// role-machine operations directly.
func (c *Coordinator) Consensus() *consensus.Core { return c.consensus }

// ConflictEngine exposes the conflict engine for the lock-file resolver.
func (c *Coordinator) ConflictEngine() *conflict.Engine { return c.conflicts }

// --- Stats ---

// CoordinationStats is the consolidated GetStats payload.
type CoordinationStats struct {
	TotalAgents    int                        `json:"total_agents"`
	AgentsByStatus map[models.AgentStatus]int `json:"agents_by_status"`

	MessagesSent       uint64        `json:"messages_sent"`
	MessagesDelivered  uint64        `json:"messages_delivered"`
	MessagesFailed     uint64        `json:"messages_failed"`
	MessagesResponded  uint64        `json:"messages_responded"`
	AverageRespondTime time.Duration `json:"average_respond_time"`
	EfficiencyRatio    float64       `json:"efficiency_ratio"`

	ActiveSessions int `json:"active_sessions"`
	TotalSessions  int `json:"total_sessions"`

	TotalResources int `json:"total_resources"`
	ActiveLocks    int `json:"active_locks"`

	OpenConflicts  int `json:"open_conflicts"`
	TotalConflicts int `json:"total_conflicts"`
}

// GetStats aggregates a consistent-enough snapshot across components. Each
// component is sampled under its own lock; no cross-component lock is held.
func (c *Coordinator) GetStats() CoordinationStats {
	stats := CoordinationStats{AgentsByStatus: make(map[models.AgentStatus]int)}

	agents := c.registry.ListAll()
	stats.TotalAgents = len(agents)
	for _, a := range agents {
		stats.AgentsByStatus[a.Status]++
	}

	rs := c.router.Stats()
	stats.MessagesSent = rs.Sent
	stats.MessagesDelivered = rs.Delivered
	stats.MessagesFailed = rs.Failed
	stats.MessagesResponded = rs.Responded
	stats.AverageRespondTime = rs.AverageRespondTime
	stats.EfficiencyRatio = rs.EfficiencyRatio

	stats.ActiveSessions, stats.TotalSessions = c.sessions.Counts()
	stats.TotalResources, stats.ActiveLocks = c.resources.Counts()

	all := c.conflicts.List("", "")
	stats.TotalConflicts = len(all)
	for _, cf := range all {
		if !cf.Resolved {
			stats.OpenConflicts++
		}
	}
	return stats
}
