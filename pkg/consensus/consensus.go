// Package consensus implements the ConsensusCore component:
// a Raft-family per-node role machine (term, role, voted_for, log) with
// monotone commit/apply tracking, persisted via a PersistenceGateway.
package consensus

import (
	"errors"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "consensus"

// Store is the narrow persistence contract ConsensusCore needs: load/save the
// node's role state and append-only log. Implementations live in
// pkg/persistence; a Core built with a nil Store keeps its state in memory
// only, for tests and for deployments that accept non-durable consensus
// state.
type Store interface {
	LoadState(nodeID string) (*models.ConsensusState, bool, error)
	SaveState(nodeID string, state models.ConsensusState) error
	AppendLog(nodeID string, entry models.ConsensusEntry) error
	Log(nodeID string) ([]models.ConsensusEntry, error)
	MarkCommitted(nodeID string, index int, at time.Time) error
	MarkApplied(nodeID string, index int, at time.Time) error
}

// node bundles a node's in-memory state with its own lock so concurrent
// nodes never contend on a single table-wide mutex.
type node struct {
	mu       sync.Mutex
	state    models.ConsensusState
	log      []models.ConsensusEntry
	lastSeen time.Time
}

// Core is the ConsensusCore.
type Core struct {
	store Store

	mu    sync.RWMutex
	nodes map[string]*node

	electionTimeout time.Duration
	stopOnce        sync.Once
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// Config holds the consensus core's tunables.
type Config struct {
	ElectionTimeout time.Duration
}

// DefaultConfig mirrors a conservative single-process default.
func DefaultConfig() Config {
	return Config{ElectionTimeout: 150 * time.Millisecond}
}

// New constructs a Core backed by store. Call Start to run the election
// timer for the local node if this process participates in voting.
func New(store Store, cfg Config) *Core {
	return &Core{
		store:           store,
		nodes:           make(map[string]*node),
		electionTimeout: cfg.ElectionTimeout,
		stopCh:          make(chan struct{}),
	}
}

func (c *Core) nodeFor(nodeID string) *node {
	c.mu.RLock()
	n, ok := c.nodes[nodeID]
	c.mu.RUnlock()
	if ok {
		return n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok = c.nodes[nodeID]; ok {
		return n
	}
	n = &node{
		state: models.ConsensusState{
			NodeID: nodeID, Role: models.RoleFollower, CommitIndex: -1, LastApplied: -1,
		},
		lastSeen: time.Now(),
	}
	if c.store != nil {
		if loaded, found, err := c.store.LoadState(nodeID); err == nil && found {
			n.state = *loaded
		}
		if log, err := c.store.Log(nodeID); err == nil {
			n.log = log
		}
	}
	c.nodes[nodeID] = n
	return n
}

// GetState returns a snapshot of nodeID's role state, initializing it as a
// fresh Follower at term 0 if unseen.
func (c *Core) GetState(nodeID string) models.ConsensusState {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// StoreState overwrites nodeID's role state wholesale (used by the
// election algorithm to apply a computed transition) and persists it.
func (c *Core) StoreState(nodeID string, state models.ConsensusState) error {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()
	if state.Term < n.state.Term {
		return coordinationerr.Newf(component, "StoreState", coordinationerr.KindInvalidArgument, nodeID, errTermRegression)
	}
	n.state = state
	if c.store != nil {
		return c.store.SaveState(nodeID, state)
	}
	return nil
}

var errTermRegression = errors.New("term must not decrease")

// AppendEntry appends entry to nodeID's log; entry.Index must equal the
// current log length, keeping indices dense.
func (c *Core) AppendEntry(nodeID string, entry models.ConsensusEntry) error {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()

	if entry.Index != len(n.log) {
		return coordinationerr.New(component, "AppendEntry", coordinationerr.KindInvalidArgument)
	}
	n.log = append(n.log, entry)
	if c.store != nil {
		if err := c.store.AppendLog(nodeID, entry); err != nil {
			return coordinationerr.Newf(component, "AppendEntry", coordinationerr.KindUnavailable, nodeID, err)
		}
	}
	return nil
}

// MarkCommitted advances nodeID's commit_index to index. Monotone: index
// must be >= the current commit_index and <= the last log index.
func (c *Core) MarkCommitted(nodeID string, index int) error {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()

	if index < n.state.CommitIndex {
		return coordinationerr.New(component, "MarkCommitted", coordinationerr.KindInvalidArgument)
	}
	if index >= len(n.log) {
		return coordinationerr.New(component, "MarkCommitted", coordinationerr.KindInvalidArgument)
	}
	n.state.CommitIndex = index
	now := time.Now()
	for i := range n.log {
		if n.log[i].Index <= index && n.log[i].CommittedAt.IsZero() {
			n.log[i].CommittedAt = now
		}
	}
	if c.store != nil {
		if err := c.store.MarkCommitted(nodeID, index, now); err != nil {
			return coordinationerr.Newf(component, "MarkCommitted", coordinationerr.KindUnavailable, nodeID, err)
		}
		if err := c.store.SaveState(nodeID, n.state); err != nil {
			return coordinationerr.Newf(component, "MarkCommitted", coordinationerr.KindUnavailable, nodeID, err)
		}
	}
	return nil
}

// MarkApplied advances nodeID's last_applied to index. Monotone, and
// bounded above by commit_index.
func (c *Core) MarkApplied(nodeID string, index int) error {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()

	if index < n.state.LastApplied {
		return coordinationerr.New(component, "MarkApplied", coordinationerr.KindInvalidArgument)
	}
	if index > n.state.CommitIndex {
		return coordinationerr.New(component, "MarkApplied", coordinationerr.KindInvalidArgument)
	}
	n.state.LastApplied = index
	now := time.Now()
	for i := range n.log {
		if n.log[i].Index <= index && n.log[i].AppliedAt.IsZero() {
			n.log[i].AppliedAt = now
		}
	}
	if c.store != nil {
		if err := c.store.MarkApplied(nodeID, index, now); err != nil {
			return coordinationerr.Newf(component, "MarkApplied", coordinationerr.KindUnavailable, nodeID, err)
		}
		if err := c.store.SaveState(nodeID, n.state); err != nil {
			return coordinationerr.Newf(component, "MarkApplied", coordinationerr.KindUnavailable, nodeID, err)
		}
	}
	return nil
}

// Log returns a copy of nodeID's append-only log.
func (c *Core) Log(nodeID string) []models.ConsensusEntry {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.ConsensusEntry, len(n.log))
	copy(out, n.log)
	return out
}

// RequestVote applies Raft's election-safety rule for nodeID considering a
// vote request from candidateID at candidateTerm: grants the vote (and
// advances nodeID's term, clearing voted_for) only if candidateTerm is at
// least as new as nodeID's term and nodeID has not already voted this term
// for someone else.
func (c *Core) RequestVote(nodeID, candidateID string, candidateTerm int) bool {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()

	if candidateTerm < n.state.Term {
		return false
	}
	if candidateTerm > n.state.Term {
		n.state.Term = candidateTerm
		n.state.Role = models.RoleFollower
		n.state.VotedFor = ""
	}
	if n.state.VotedFor != "" && n.state.VotedFor != candidateID {
		return false
	}
	n.state.VotedFor = candidateID
	return true
}

// PromoteToLeader transitions nodeID to Leader for its current term, given
// it received grantedVotes out of clusterSize total voters. Returns false
// if the vote count does not reach majority or a higher term was observed
// in the meantime.
func (c *Core) PromoteToLeader(nodeID string, term, grantedVotes, clusterSize int) bool {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()
	if term != n.state.Term {
		return false
	}
	if grantedVotes < majority(clusterSize) {
		return false
	}
	n.state.Role = models.RoleLeader
	n.state.LeaderID = nodeID
	return true
}

func majority(total int) int { return total/2 + 1 }

// ObserveTerm demotes nodeID to Follower if remoteTerm exceeds its current
// term.
func (c *Core) ObserveTerm(nodeID string, remoteTerm int, leaderID string) {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	defer n.mu.Unlock()
	if remoteTerm > n.state.Term {
		n.state.Term = remoteTerm
		n.state.Role = models.RoleFollower
		n.state.VotedFor = ""
		n.state.LeaderID = leaderID
	}
}

// ResetElectionTimer records that nodeID observed valid leader activity
// (an AppendEntries/heartbeat RPC), deferring its own election timeout.
func (c *Core) ResetElectionTimer(nodeID string) {
	n := c.nodeFor(nodeID)
	n.mu.Lock()
	n.lastSeen = time.Now()
	n.mu.Unlock()
}

// Start runs a background scan (cadence tick) that promotes any Follower
// node which has not seen leader activity within the configured election
// timeout to Candidate, incrementing its term and voting for itself — the
// same periodic-reaper shape used by the other components' background
// loops, applied here to Raft's election-timeout rule.
func (c *Core) Start(tick time.Duration) {
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
				c.promoteTimedOutFollowers()
			}
		}
	}()
}

func (c *Core) promoteTimedOutFollowers() {
	c.mu.RLock()
	nodes := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	now := time.Now()
	for _, n := range nodes {
		n.mu.Lock()
		if n.state.Role == models.RoleFollower && now.Sub(n.lastSeen) > c.electionTimeout {
			n.state.Role = models.RoleCandidate
			n.state.Term++
			n.state.VotedFor = n.state.NodeID
			n.lastSeen = now
		}
		n.mu.Unlock()
	}
}

// Stop halts the background election-timeout scanner, if running.
func (c *Core) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
