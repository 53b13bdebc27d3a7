package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func newTestRegistry() *Registry {
	return New(Config{MaxConcurrentAgents: 3, MaxBlockTime: 50 * time.Millisecond})
}

func TestRegisterAndGetRoundTrip(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Register(models.AgentInfo{ID: "a1", Name: "agent-1", Capabilities: []string{"build"}})
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleIdle, a.Lifecycle)

	got, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Name, got.Name)
	assert.True(t, got.Capabilities["build"])
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(models.AgentInfo{ID: "a1"})
	require.NoError(t, err)
	_, err = r.Register(models.AgentInfo{ID: "a1"})
	require.Error(t, err)
	assert.Equal(t, coordinationerr.KindAlreadyExists, coordinationerr.KindOf(err))
}

func TestRegisterCapacityExceeded(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 3; i++ {
		_, err := r.Register(models.AgentInfo{ID: string(rune('a' + i))})
		require.NoError(t, err)
	}
	_, err := r.Register(models.AgentInfo{ID: "overflow"})
	require.Error(t, err)
	assert.Equal(t, coordinationerr.KindCapacityExceeded, coordinationerr.KindOf(err))
	assert.Len(t, r.ListAll(), 3)
}

func TestNarrowLifecycleTransitions(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(models.AgentInfo{ID: "a1"})
	require.NoError(t, err)

	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusWorking, models.AgentHealthHealthy, "task-1"))
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusBlocked, models.AgentHealthHealthy, ""))
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusWorking, models.AgentHealthHealthy, ""),
		"a blocked agent may resume working")
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusBlocked, models.AgentHealthHealthy, ""))
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusIdle, models.AgentHealthHealthy, ""))
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusWorking, models.AgentHealthHealthy, ""))

	err = r.UpdateStatus("a1", models.AgentStatusIdle, models.AgentHealthHealthy, "")
	require.NoError(t, err) // Working -> Idle legal
}

func TestNoTransitionOutOfCompleted(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(models.AgentInfo{ID: "a1"})
	require.NoError(t, err)

	// No wire status maps onto Completed, so UpdateStatus cannot drive an
	// agent there; the agent is moved to Working and the transition table is
	// checked directly for edges leaving Completed.
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusWorking, models.AgentHealthHealthy, ""))

	a, err := r.Get("a1")
	require.NoError(t, err)
	a.Lifecycle = models.LifecycleCompleted // a copy; the registry's entry is unchanged

	// Directly exercise narrowTransitions for Completed to confirm it is a
	// true sink (no outgoing edges at all).
	assert.Empty(t, narrowTransitions[models.LifecycleCompleted])
}

func TestUnregisterRejectedWithActiveLocks(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(models.AgentInfo{ID: "a1"})
	require.NoError(t, err)
	r.SetLockChecker(func(agentID string) bool { return agentID == "a1" })

	err = r.Unregister("a1")
	require.Error(t, err)
	assert.Equal(t, coordinationerr.KindInvalidTransition, coordinationerr.KindOf(err))

	r.SetLockChecker(func(string) bool { return false })
	require.NoError(t, r.Unregister("a1"))
	_, err = r.Get("a1")
	assert.True(t, errors.Is(err, coordinationerr.ErrNotFound))
}

func TestBlockedAgentPromotedAfterMaxBlockTime(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(models.AgentInfo{ID: "a1"})
	require.NoError(t, err)
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusWorking, models.AgentHealthHealthy, ""))
	require.NoError(t, r.UpdateStatus("a1", models.AgentStatusBlocked, models.AgentHealthHealthy, ""))

	r.promoteStaleBlocked(time.Now().Add(time.Second))

	a, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleIdle, a.Lifecycle)

	hist, err := r.History("a1")
	require.NoError(t, err)
	assert.Equal(t, "max_block_time exceeded: auto-promoted", hist[len(hist)-1].Reason)
}

func TestHeartbeatDrainUnknownAgent(t *testing.T) {
	r := newTestRegistry()
	err := r.Heartbeat("ghost", models.AgentStatusIdle, models.AgentHealthHealthy, "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coordinationerr.ErrNotFound))
}
