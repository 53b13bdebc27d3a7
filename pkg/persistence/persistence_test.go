package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// gatewayUnderTest runs the shared conformance suite against any Gateway.
// The kv and db backends implement the same contract but need live
// infrastructure, so only memory and file run here.
func gatewayUnderTest(t *testing.T, g Gateway) {
	t.Helper()

	// Unknown node: no state, empty log.
	_, found, err := g.LoadState("unknown")
	require.NoError(t, err)
	assert.False(t, found)
	log, err := g.Log("unknown")
	require.NoError(t, err)
	assert.Empty(t, log)

	// Save and reload state.
	state := models.ConsensusState{
		NodeID: "n1", Term: 3, Role: models.RoleLeader, LeaderID: "n1",
		VotedFor: "n1", CommitIndex: -1, LastApplied: -1,
	}
	require.NoError(t, g.SaveState("n1", state))
	loaded, found, err := g.LoadState("n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state, *loaded)

	// Append keeps index order.
	for i := 0; i < 3; i++ {
		require.NoError(t, g.AppendLog("n1", models.ConsensusEntry{
			Term: 3, Index: i, Payload: []byte{byte(i)},
		}))
	}
	log, err = g.Log("n1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	for i, entry := range log {
		assert.Equal(t, i, entry.Index)
	}

	// MarkCommitted stamps entries 0..1 once; a later call never restamps.
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, g.MarkCommitted("n1", 1, at))
	later := at.Add(time.Hour)
	require.NoError(t, g.MarkCommitted("n1", 1, later))
	log, err = g.Log("n1")
	require.NoError(t, err)
	assert.False(t, log[0].CommittedAt.IsZero())
	assert.False(t, log[1].CommittedAt.IsZero())
	assert.True(t, log[2].CommittedAt.IsZero())
	assert.True(t, log[0].CommittedAt.Before(later), "restamp must not overwrite")

	// MarkApplied past the log end is rejected.
	require.Error(t, g.MarkApplied("n1", 99, at))
	require.NoError(t, g.MarkApplied("n1", 0, at))
	log, err = g.Log("n1")
	require.NoError(t, err)
	assert.False(t, log[0].AppliedAt.IsZero())
	assert.True(t, log[1].AppliedAt.IsZero())

	// Snapshot reflects everything.
	snap, err := g.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, snap.States, "n1")
	assert.Len(t, snap.Logs["n1"], 3)

	require.NoError(t, g.Close())
}

func TestMemoryGateway(t *testing.T) {
	gatewayUnderTest(t, NewMemory())
}

func TestFileGateway(t *testing.T) {
	g, err := NewFile(t.TempDir())
	require.NoError(t, err)
	gatewayUnderTest(t, g)
}

func TestFileGatewaySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	g, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, g.SaveState("n1", models.ConsensusState{
		NodeID: "n1", Term: 7, Role: models.RoleFollower, CommitIndex: -1, LastApplied: -1,
	}))
	require.NoError(t, g.AppendLog("n1", models.ConsensusEntry{Term: 7, Index: 0}))
	require.NoError(t, g.Close())

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	state, found, err := reopened.LoadState("n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7, state.Term)
	log, err := reopened.Log("n1")
	require.NoError(t, err)
	require.Len(t, log, 1)
}

func TestFileGatewayEscapesNodeID(t *testing.T) {
	g, err := NewFile(t.TempDir())
	require.NoError(t, err)
	hostile := "../../etc/passwd"
	require.NoError(t, g.SaveState(hostile, models.ConsensusState{NodeID: hostile, CommitIndex: -1, LastApplied: -1}))
	_, found, err := g.LoadState(hostile)
	require.NoError(t, err)
	assert.True(t, found)
}
