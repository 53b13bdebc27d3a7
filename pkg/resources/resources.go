// Package resources implements the ResourceManager component:
// capacity-bounded resource allocation with ownership, timeouts, and a
// background reaper that revokes expired locks.
package resources

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "resources"

// RequestOutcome is the result of a Request call.
type RequestOutcome string

const (
	Acquired   RequestOutcome = "acquired"
	AlreadyHeld RequestOutcome = "already_held"
	AtCapacity RequestOutcome = "at_capacity"
)

// TimeoutNotifier is invoked by the reaper when it revokes an expired lock,
// so the caller (the facade) can emit a ConflictNotification onto the
// MessageRouter.
type TimeoutNotifier func(resourceID, agentID string)

// resourceEntry bundles a Resource with its active locks, keyed by agent id
// (at most one lock per agent per resource; see Request's idempotence rule).
type resourceEntry struct {
	resource *models.Resource
	locks    map[string]*models.ResourceLock // agent_id -> lock
	waiters  map[string]time.Time            // agent_id -> first AtCapacity observation
}

// Manager is the ResourceManager.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resourceEntry

	onTimeout TimeoutNotifier

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Manager. Call Start to run the timeout reaper.
func New(onTimeout TimeoutNotifier) *Manager {
	if onTimeout == nil {
		onTimeout = func(string, string) {}
	}
	return &Manager{
		resources: make(map[string]*resourceEntry),
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background lock-timeout reaper.
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
				m.reapExpired(time.Now())
			}
		}
	}()
}

// Stop halts the reaper and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// AddResource registers a new capacity-bounded resource.
func (m *Manager) AddResource(r models.Resource) error {
	if r.ID == "" {
		return coordinationerr.New(component, "AddResource", coordinationerr.KindInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.resources[r.ID]; exists {
		return coordinationerr.Newf(component, "AddResource", coordinationerr.KindAlreadyExists, r.ID, nil)
	}
	now := time.Now()
	r.CreatedAt, r.LastUpdated, r.InUse = now, now, 0
	m.resources[r.ID] = &resourceEntry{
		resource: &r,
		locks:    make(map[string]*models.ResourceLock),
		waiters:  make(map[string]time.Time),
	}
	return nil
}

// RemoveResource deletes resourceID; any outstanding locks on it are
// dropped along with it.
func (m *Manager) RemoveResource(resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[resourceID]; !ok {
		return coordinationerr.NotFound(component, "RemoveResource", resourceID)
	}
	delete(m.resources, resourceID)
	return nil
}

// Request attempts to acquire resourceID for agentID with the given
// timeout. If agentID already holds the resource, returns AlreadyHeld
// without double-counting usage.
func (m *Manager) Request(resourceID, agentID string, timeout time.Duration) (RequestOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.resources[resourceID]
	if !ok {
		return "", coordinationerr.NotFound(component, "Request", resourceID)
	}

	if _, held := e.locks[agentID]; held {
		return AlreadyHeld, nil
	}

	if e.resource.InUse >= e.resource.Capacity {
		// Record the agent as an outstanding waiter so the deadlock scanner
		// can derive a wait-for graph from current locks + failed requests.
		if _, waiting := e.waiters[agentID]; !waiting {
			e.waiters[agentID] = time.Now()
		}
		return AtCapacity, nil
	}
	delete(e.waiters, agentID)

	var expiresAt time.Time
	if timeout > 0 {
		expiresAt = time.Now().Add(timeout)
	}
	lock := &models.ResourceLock{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		AgentID:    agentID,
		Mode:       models.LockExclusive,
		AcquiredAt: time.Now(),
		ExpiresAt:  expiresAt,
	}
	e.locks[agentID] = lock
	e.resource.InUse = len(e.locks)
	e.resource.LastUpdated = time.Now()
	return Acquired, nil
}

// Release drops agentID's lock on resourceID. NotOwner is returned if some
// other agent holds it; NotLocked if nobody does (including a second
// Release call, which must never double-decrement usage).
func (m *Manager) Release(resourceID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.resources[resourceID]
	if !ok {
		return coordinationerr.NotFound(component, "Release", resourceID)
	}
	if _, held := e.locks[agentID]; !held {
		// Distinguish "some other agent holds it" (NotOwner) from "nobody
		// holds it" (NotLocked) by scanning for any lock at all.
		if len(e.locks) > 0 {
			return coordinationerr.Newf(component, "Release", coordinationerr.KindNotOwner, resourceID, nil)
		}
		return coordinationerr.Newf(component, "Release", coordinationerr.KindInvalidArgument, resourceID, errNotLocked)
	}
	delete(e.locks, agentID)
	delete(e.waiters, agentID)
	e.resource.InUse = len(e.locks)
	e.resource.LastUpdated = time.Now()
	return nil
}

var errNotLocked = coordinationerr.New(component, "Release", coordinationerr.KindInvalidArgument)

// Get returns a snapshot of resourceID, or NotFound.
func (m *Manager) Get(resourceID string) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.resources[resourceID]
	if !ok {
		return nil, coordinationerr.NotFound(component, "Get", resourceID)
	}
	r := *e.resource
	return &r, nil
}

// HasActiveLocks reports whether agentID holds any lock on any resource;
// wired into the registry's Unregister guard.
func (m *Manager) HasActiveLocks(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.resources {
		if _, ok := e.locks[agentID]; ok {
			return true
		}
	}
	return false
}

// reapExpired revokes every lock past its deadline, decrementing usage and
// notifying via onTimeout. Revocation is idempotent: a lock already removed
// by a concurrent Release is simply absent from the scan.
func (m *Manager) reapExpired(now time.Time) {
	type expiry struct{ resourceID, agentID string }
	var expired []expiry

	m.mu.Lock()
	for resourceID, e := range m.resources {
		for agentID, lock := range e.locks {
			if lock.Expired(now) {
				delete(e.locks, agentID)
				expired = append(expired, expiry{resourceID, agentID})
			}
		}
		e.resource.InUse = len(e.locks)
	}
	m.mu.Unlock()

	for _, x := range expired {
		m.onTimeout(x.resourceID, x.agentID)
	}
}

// Counts returns the number of tracked resources and active locks.
func (m *Manager) Counts() (resources, activeLocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resources = len(m.resources)
	for _, e := range m.resources {
		activeLocks += len(e.locks)
	}
	return resources, activeLocks
}

// Holders returns the agent ids currently holding locks on resourceID, or
// nil if the resource is unknown.
func (m *Manager) Holders(resourceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.resources[resourceID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.locks))
	for agentID := range e.locks {
		out = append(out, agentID)
	}
	sort.Strings(out)
	return out
}

// WaitForGraph derives the wait-for edges the deadlock scanner consumes:
// for every outstanding waiter, one edge to each current holder of the
// resource it is waiting on. Keys with no outgoing edges are omitted.
func (m *Manager) WaitForGraph() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph := make(map[string][]string)
	for _, e := range m.resources {
		if len(e.waiters) == 0 || len(e.locks) == 0 {
			continue
		}
		for waiter := range e.waiters {
			for holder := range e.locks {
				if holder != waiter {
					graph[waiter] = append(graph[waiter], holder)
				}
			}
		}
	}
	for _, holders := range graph {
		sort.Strings(holders)
	}
	return graph
}

// DropWaiter forgets any outstanding waits recorded for agentID, across all
// resources. Called when the agent unregisters or gives up.
func (m *Manager) DropWaiter(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.resources {
		delete(e.waiters, agentID)
	}
}
