package resources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func TestResourceContention(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 1}))

	out, err := m.Request("R", "A1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Acquired, out)

	out, err = m.Request("R", "A2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, AtCapacity, out)

	require.NoError(t, m.Release("R", "A1"))

	out, err = m.Request("R", "A2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Acquired, out)
}

func TestRequestIdempotentWhenAlreadyHeld(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 1}))
	_, err := m.Request("R", "A1", time.Minute)
	require.NoError(t, err)
	out, err := m.Request("R", "A1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, AlreadyHeld, out)

	res, err := m.Get("R")
	require.NoError(t, err)
	assert.Equal(t, 1, res.InUse)
}

func TestReleaseIdempotence(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 1}))
	_, err := m.Request("R", "A1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Release("R", "A1"))

	err = m.Release("R", "A1")
	require.Error(t, err) // second release is NotLocked, never double-decrements
}

func TestReleaseByNonOwnerFails(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 1}))
	_, err := m.Request("R", "A1", time.Minute)
	require.NoError(t, err)

	err = m.Release("R", "A2")
	require.Error(t, err)
}

func TestLockTimeoutReaper(t *testing.T) {
	var notified []string
	m := New(func(resourceID, agentID string) {
		notified = append(notified, resourceID+":"+agentID)
	})
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 1}))
	_, err := m.Request("R", "A1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.reapExpired(time.Now())

	assert.Equal(t, []string{"R:A1"}, notified)

	out, err := m.Request("R", "A2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Acquired, out)
}

func TestUsageNeverExceedsCapacity(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AddResource(models.Resource{ID: "R", Capacity: 2}))
	for _, a := range []string{"A1", "A2", "A3"} {
		_, _ = m.Request("R", a, time.Minute)
	}
	res, err := m.Get("R")
	require.NoError(t, err)
	assert.LessOrEqual(t, res.InUse, res.Capacity)
	assert.Equal(t, 2, res.InUse)
}
