package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func TestCreateJoinLeaveSendMessage(t *testing.T) {
	m := New(DefaultConfig())
	s, err := m.Create("deploy-plan", "A1", []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, s.Status)

	require.NoError(t, m.Join(s.ID, "A3"))
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.HasParticipant("A3"))

	require.NoError(t, m.Leave(s.ID, "A2"))
	got, _ = m.Get(s.ID)
	assert.False(t, got.HasParticipant("A2"))

	msg, err := m.SendMessage(s.ID, "A1", "let's proceed")
	require.NoError(t, err)
	assert.Equal(t, "A1", msg.From)
}

func TestDecisionTransitionsSessionToCompleted(t *testing.T) {
	m := New(DefaultConfig())
	s, err := m.Create("merge-pr", "A1", []string{"A1", "A2"})
	require.NoError(t, err)

	votes := []models.Vote{
		{AgentID: "A1", Value: models.VoteApprove},
		{AgentID: "A2", Value: models.VoteApprove},
	}
	d, err := m.RecordDecision(s.ID, "merge?", models.VotingSimpleMajority, votes, 2)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, d.Outcome)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)

	_, err = m.SendMessage(s.ID, "A1", "too late")
	require.Error(t, err)
}

func TestConsensusWithVetoSingleRejectWins(t *testing.T) {
	votes := []models.Vote{
		{AgentID: "A1", Value: models.VoteApprove},
		{AgentID: "A2", Value: models.VoteReject},
		{AgentID: "A3", Value: models.VoteApprove},
	}
	outcome, vetoBy := Resolve(models.VotingConsensusWithVeto, votes, 1)
	assert.Equal(t, models.OutcomeRejected, outcome)
	assert.Equal(t, []string{"A2"}, vetoBy)
}

func TestWeightedVotingMajorityByWeight(t *testing.T) {
	votes := []models.Vote{
		{AgentID: "A1", Value: models.VoteApprove, Weight: 3},
		{AgentID: "A2", Value: models.VoteReject, Weight: 1},
	}
	outcome, _ := Resolve(models.VotingWeighted, votes, 1)
	assert.Equal(t, models.OutcomeApproved, outcome)
}

func TestSessionTimeoutReaperMarksFailed(t *testing.T) {
	m := New(Config{SessionTimeout: time.Millisecond})
	s, err := m.Create("topic", "A1", []string{"A1"})
	require.NoError(t, err)

	m.reapTimedOut(time.Now().Add(time.Hour))

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
}

func TestAppendRejectedAfterTerminalStatus(t *testing.T) {
	m := New(DefaultConfig())
	s, err := m.Create("topic", "A1", []string{"A1"})
	require.NoError(t, err)
	_, err = m.RecordDecision(s.ID, "q", models.VotingSimpleMajority, []models.Vote{{AgentID: "A1", Value: models.VoteApprove}}, 1)
	require.NoError(t, err)

	err = m.Join(s.ID, "A9")
	require.Error(t, err)
}
