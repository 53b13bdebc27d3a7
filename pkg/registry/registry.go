// Package registry implements the AgentRegistry component:
// identity, lifecycle state, health, metrics, and a bounded audit history
// for the population of coordination agents.
package registry

import (
	"sync"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// historyCapacity bounds the per-agent audit ring.
const historyCapacity = 200

// component is used in coordinationerr.* constructors below.
const component = "registry"

// Config holds the registry's coordination tunables.
type Config struct {
	MaxConcurrentAgents int
	MaxBlockTime        time.Duration
}

// DefaultConfig returns the built-in registry defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentAgents: 10000,
		MaxBlockTime:        5 * time.Minute,
	}
}

// entry is the registry's internal record: the public Agent plus its
// bounded transition history.
type entry struct {
	agent   *models.Agent
	history []models.StateTransition
}

// Registry is the AgentRegistry: a single reader-writer lock guarding an
// agent table plus a background reaper promoting long-blocked agents back
// to Idle.
type Registry struct {
	cfg Config

	mu     sync.RWMutex
	agents map[string]*entry

	// lockChecker reports, for a given agent id, whether it currently owns
	// any ResourceLock. Wired by the facade via SetLockChecker so Unregister
	// can enforce "HasActiveLocks" without an import cycle
	// back to pkg/resources.
	lockChecker func(agentID string) bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Registry. Call Start to run the blocked-agent reaper.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		agents: make(map[string]*entry),
		stopCh: make(chan struct{}),
	}
}

// SetLockChecker wires the predicate Unregister uses to enforce
// the rule that unregistering an agent that owns any ResourceLock fails.
func (r *Registry) SetLockChecker(f func(agentID string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockChecker = f
}

// Start launches the background reaper that promotes agents blocked longer
// than MaxBlockTime back to Idle.
func (r *Registry) Start(tick time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.promoteStaleBlocked(time.Now())
			}
		}
	}()
}

// Stop halts the reaper and waits for it to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Register adds a new agent. Returns AlreadyExists if the id is taken, or
// CapacityExceeded if MaxConcurrentAgents is already reached.
func (r *Registry) Register(info models.AgentInfo) (*models.Agent, error) {
	if info.ID == "" {
		return nil, coordinationerr.New(component, "Register", coordinationerr.KindInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[info.ID]; exists {
		return nil, coordinationerr.Newf(component, "Register", coordinationerr.KindAlreadyExists, info.ID, nil)
	}
	if r.cfg.MaxConcurrentAgents > 0 && len(r.agents) >= r.cfg.MaxConcurrentAgents {
		return nil, coordinationerr.New(component, "Register", coordinationerr.KindCapacityExceeded)
	}

	now := time.Now()
	caps := make(map[string]bool, len(info.Capabilities))
	for _, c := range info.Capabilities {
		caps[c] = true
	}
	agent := &models.Agent{
		ID:            info.ID,
		Name:          info.Name,
		Type:          info.Type,
		Status:        models.AgentStatusIdle,
		Health:        models.AgentHealthHealthy,
		Capabilities:  caps,
		Priority:      info.Priority,
		Version:       info.Version,
		Endpoint:      info.Endpoint,
		Metadata:      info.Metadata,
		LastHeartbeat: now,
		CreatedAt:     now,
		LastUpdated:   now,
		Lifecycle:     models.LifecycleIdle,
	}

	r.agents[info.ID] = &entry{agent: agent}
	r.recordLocked(info.ID, "", models.LifecycleIdle, "registered")
	return agent.Clone(), nil
}

// Unregister removes agent_id. Fails with kind InvalidTransition (wrapping
// errHasActiveLocks) when the lock checker reports that the agent still
// holds a ResourceLock.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return coordinationerr.NotFound(component, "Unregister", agentID)
	}
	if r.lockChecker != nil && r.lockChecker(agentID) {
		return coordinationerr.Newf(component, "Unregister", coordinationerr.KindInvalidTransition, agentID,
			errHasActiveLocks)
	}
	delete(r.agents, agentID)
	return nil
}

var errHasActiveLocks = coordinationerr.New(component, "Unregister", coordinationerr.KindInvalidTransition)

// narrowTransitions enumerates the legal moves of the Idle/Working/Blocked/
// Completed machine. Completed has no outgoing edges.
var narrowTransitions = map[models.AgentLifecycle]map[models.AgentLifecycle]bool{
	models.LifecycleIdle: {
		models.LifecycleWorking:   true,
		models.LifecycleCompleted: true,
	},
	models.LifecycleWorking: {
		models.LifecycleIdle:     true,
		models.LifecycleBlocked:  true,
		models.LifecycleCompleted: true,
	},
	models.LifecycleBlocked: {
		models.LifecycleIdle:      true,
		models.LifecycleWorking:   true,
		models.LifecycleCompleted: true,
	},
	models.LifecycleCompleted: {},
}

// lifecycleFor derives the narrow lifecycle value implied by a wire
// AgentStatus, per Open Question 4: Idle/Working/Blocked map directly;
// Busy/Collaborating/Maintenance/Starting/ShuttingDown/Error/Offline are
// reporting-only and keep the agent's current narrow lifecycle (Working if
// it has none yet), so they never force a narrow-machine transition.
func lifecycleFor(status models.AgentStatus, current models.AgentLifecycle) models.AgentLifecycle {
	switch status {
	case models.AgentStatusIdle:
		return models.LifecycleIdle
	case models.AgentStatusWorking:
		return models.LifecycleWorking
	case models.AgentStatusBlocked:
		return models.LifecycleBlocked
	default:
		// Reporting-only statuses never force a narrow-machine transition;
		// they keep whatever narrow lifecycle the agent already had, unless
		// it had none yet (fresh agent), in which case Working is the
		// conservative default ("operationally engaged").
		if current == "" {
			return models.LifecycleWorking
		}
		return current
	}
}

// UpdateStatus applies a status/health/task change, enforcing the narrow
// lifecycle machine. InvalidTransition is returned for any move attempted
// out of Completed, or any other edge not present in narrowTransitions.
func (r *Registry) UpdateStatus(agentID string, status models.AgentStatus, health models.AgentHealth, task string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[agentID]
	if !ok {
		return coordinationerr.NotFound(component, "UpdateStatus", agentID)
	}

	from := e.agent.Lifecycle
	to := lifecycleFor(status, from)
	if to != from {
		allowed, known := narrowTransitions[from]
		if !known || !allowed[to] {
			return coordinationerr.Newf(component, "UpdateStatus", coordinationerr.KindInvalidTransition, agentID, nil)
		}
	}

	e.agent.Status = status
	e.agent.Health = health
	if task != "" {
		e.agent.CurrentTask = task
	}
	e.agent.Lifecycle = to
	e.agent.LastUpdated = time.Now()
	if to == models.LifecycleBlocked && from != models.LifecycleBlocked {
		e.agent.BlockedSince = e.agent.LastUpdated
	} else if to != models.LifecycleBlocked {
		e.agent.BlockedSince = time.Time{}
	}

	r.recordLocked(agentID, from, to, "update_status")
	return nil
}

// Heartbeat refreshes LastHeartbeat/status/health/task/metrics for a
// cooperative liveness ping; it does not enforce the narrow machine beyond
// what UpdateStatus already does, since a heartbeat that repeats the
// current status is a no-op transition (from == to).
func (r *Registry) Heartbeat(agentID string, status models.AgentStatus, health models.AgentHealth, task string, metrics *models.AgentMetrics) error {
	if err := r.UpdateStatus(agentID, status, health, task); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return coordinationerr.NotFound(component, "Heartbeat", agentID)
	}
	e.agent.LastHeartbeat = time.Now()
	if metrics != nil {
		e.agent.Metrics = *metrics
	}
	return nil
}

// Get returns a defensive copy of the named agent.
func (r *Registry) Get(agentID string) (*models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return nil, coordinationerr.NotFound(component, "Get", agentID)
	}
	return e.agent.Clone(), nil
}

// ListAll returns a defensive copy of every registered agent.
func (r *Registry) ListAll() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.agent.Clone())
	}
	return out
}

// IsOperational reports whether agentID is registered and in a status the
// router considers eligible for delivery/subscription (anything but
// Offline/Error/ShuttingDown).
func (r *Registry) IsOperational(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return false
	}
	switch e.agent.Status {
	case models.AgentStatusOffline, models.AgentStatusError, models.AgentStatusShuttingDown:
		return false
	default:
		return true
	}
}

// History returns a copy of agentID's bounded transition audit ring.
func (r *Registry) History(agentID string) ([]models.StateTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return nil, coordinationerr.NotFound(component, "History", agentID)
	}
	out := make([]models.StateTransition, len(e.history))
	copy(out, e.history)
	return out, nil
}

// recordLocked appends a transition to agentID's history ring, dropping the
// oldest entry when historyCapacity is exceeded. Caller must hold r.mu.
func (r *Registry) recordLocked(agentID string, from, to models.AgentLifecycle, reason string) {
	e := r.agents[agentID]
	t := models.StateTransition{
		Timestamp: time.Now(),
		AgentID:   agentID,
		From:      from,
		To:        to,
		Reason:    reason,
	}
	e.history = append(e.history, t)
	if len(e.history) > historyCapacity {
		e.history = e.history[len(e.history)-historyCapacity:]
	}
}

// promoteStaleBlocked demotes any agent that has been Blocked longer than
// MaxBlockTime back to Idle, recording an audit entry; the promotion
// never surfaces as an error to callers.
func (r *Registry) promoteStaleBlocked(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.agents {
		if e.agent.Lifecycle != models.LifecycleBlocked {
			continue
		}
		if e.agent.BlockedSince.IsZero() || now.Sub(e.agent.BlockedSince) < r.cfg.MaxBlockTime {
			continue
		}
		e.agent.Lifecycle = models.LifecycleIdle
		e.agent.Status = models.AgentStatusIdle
		e.agent.BlockedSince = time.Time{}
		e.agent.LastUpdated = now
		r.recordLocked(id, models.LifecycleBlocked, models.LifecycleIdle, "max_block_time exceeded: auto-promoted")
	}
}
