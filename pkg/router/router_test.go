package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func operationalSet(ids ...string) OperationalChecker {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestSendZeroRecipientsRejected(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1"))
	_, err := r.Send("A1", models.Message{Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, coordinationerr.KindInvalidArgument, coordinationerr.KindOf(err))
}

func TestBasicDelivery(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "A2"))
	res, err := r.Send("A1", models.Message{ID: "m1", Recipients: []string{"A2"}, Content: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Delivery, 1)
	assert.Equal(t, models.DeliveryDelivered, res.Delivery[0].Status)

	pending := r.DrainPending("A2")
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].ID)
}

func TestMixedRecipients(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "Good"))
	res, err := r.Send("A1", models.Message{Recipients: []string{"Good", "Bad"}, Content: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Delivery, 2)

	byRecipient := map[string]models.DeliveryRecord{}
	for _, d := range res.Delivery {
		byRecipient[d.Recipient] = d
	}
	assert.Equal(t, models.DeliveryDelivered, byRecipient["Good"].Status)
	assert.Equal(t, models.DeliveryFailed, byRecipient["Bad"].Status)
}

func TestAllInvalidRecipientsFails(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1"))
	res, err := r.Send("A1", models.Message{Recipients: []string{"Nope"}, Content: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "all recipients failed", res.Error)
}

func TestHeartbeatDrainCapsAt50(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "A2"))
	for i := 0; i < 60; i++ {
		_, err := r.Send("A1", models.Message{Recipients: []string{"A2"}, Content: "x"})
		require.NoError(t, err)
	}
	first := r.DrainPending("A2")
	assert.Len(t, first, 50)
	second := r.DrainPending("A2")
	assert.Len(t, second, 10)
}

func TestSubscribeFlushesBacklogThenDelivers(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "A2"))
	_, err := r.Send("A1", models.Message{ID: "backlog-1", Recipients: []string{"A2"}, Content: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := r.Subscribe(ctx, "A2")
	require.NoError(t, err)

	select {
	case m := <-stream:
		assert.Equal(t, "backlog-1", m.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for backlog flush")
	}

	_, err = r.Send("A1", models.Message{ID: "live-1", Recipients: []string{"A2"}, Content: "y"})
	require.NoError(t, err)
	select {
	case m := <-stream:
		assert.Equal(t, "live-1", m.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live delivery")
	}
}

func TestHistoryBoundedRingDropsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 3
	r := New(cfg, operationalSet("A1", "A2"))
	for i := 0; i < 5; i++ {
		_, err := r.Send("A1", models.Message{Recipients: []string{"A2"}, Content: "x"})
		require.NoError(t, err)
	}
	hist := r.History(0, "")
	assert.Len(t, hist, 3)
}

func TestStatsEfficiencyRatio(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "A2"))
	_, err := r.Send("A1", models.Message{Recipients: []string{"A2"}, Content: "x"})
	require.NoError(t, err)
	s := r.Stats()
	assert.Equal(t, uint64(1), s.Sent)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.InDelta(t, 1.0, s.EfficiencyRatio, 0.0001)
}

func TestStreamingRecipientBypassesPullBacklog(t *testing.T) {
	r := New(DefaultConfig(), operationalSet("A1", "A2"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := r.Subscribe(ctx, "A2")
	require.NoError(t, err)

	_, err = r.Send("A1", models.Message{ID: "m1", Recipients: []string{"A2"}, Content: "x"})
	require.NoError(t, err)

	// With a live stream attached the delivery rides the channel, so the
	// pull backlog stays empty.
	assert.Empty(t, r.DrainPending("A2"))
	select {
	case m := <-stream:
		assert.Equal(t, "m1", m.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream delivery")
	}
}
