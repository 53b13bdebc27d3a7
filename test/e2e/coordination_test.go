package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func TestDeliveryOverTheWire(t *testing.T) {
	app := StartTestApp(t)
	app.RegisterAgent(t, "A1")
	app.RegisterAgent(t, "A2")

	// A2 opens its message stream before A1 sends.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, app.WSURL+"/api/v1/ws/messages/A2", &websocket.DialOptions{})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	resp := app.postJSON(t, "/api/v1/messages", map[string]any{
		"sender":     "A1",
		"recipients": []string{"A2"},
		"content":    "hello over the wire",
	}, http.StatusOK)
	assert.Equal(t, true, resp["success"])

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "A1", msg.Sender)
	assert.Equal(t, "hello over the wire", msg.Content)
}

func TestLockTimeoutNotificationOverTheWire(t *testing.T) {
	app := StartTestApp(t)
	app.RegisterAgent(t, "A1")
	app.RegisterAgent(t, "A2")
	app.postJSON(t, "/api/v1/resources", map[string]any{"id": "R", "capacity": 1}, http.StatusCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, app.WSURL+"/api/v1/ws/messages/A1", &websocket.DialOptions{})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	resp := app.postJSON(t, "/api/v1/resources/R/request", map[string]any{
		"agent_id": "A1", "timeout_s": 1,
	}, http.StatusOK)
	require.Equal(t, true, resp["acquired"])

	// The reaper revokes the lock after ~1s and A1's stream sees the
	// timeout ConflictNotification.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, models.MessageConflictNotice, msg.Type)

	// The slot is free again for A2.
	require.Eventually(t, func() bool {
		resp := app.postJSON(t, "/api/v1/resources/R/request", map[string]any{
			"agent_id": "A2", "timeout_s": 60,
		}, http.StatusOK)
		return resp["acquired"] == true
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStreamUpdatesBidirectional(t *testing.T) {
	app := StartTestApp(t)
	app.RegisterAgent(t, "A1")
	app.RegisterAgent(t, "A2")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA1, _, err := websocket.Dial(ctx, app.WSURL+"/api/v1/ws/updates/A1", &websocket.DialOptions{})
	require.NoError(t, err)
	defer connA1.Close(websocket.StatusNormalClosure, "done")

	connA2, _, err := websocket.Dial(ctx, app.WSURL+"/api/v1/ws/updates/A2", &websocket.DialOptions{})
	require.NoError(t, err)
	defer connA2.Close(websocket.StatusNormalClosure, "done")

	// A1 fans a message in through its stream; A2's stream fans it out.
	out, err := json.Marshal(map[string]any{
		"recipients": []string{"A2"},
		"content":    "ping",
	})
	require.NoError(t, err)
	require.NoError(t, connA1.Write(ctx, websocket.MessageText, out))

	_, data, err := connA2.Read(ctx)
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "A1", msg.Sender)
	assert.Equal(t, "ping", msg.Content)
}

func TestStatsOverTheWire(t *testing.T) {
	app := StartTestApp(t)
	app.RegisterAgent(t, "A1")

	stats := app.getJSON(t, "/api/v1/stats", http.StatusOK)
	assert.Equal(t, float64(1), stats["total_agents"])

	health := app.getJSON(t, "/health", http.StatusOK)
	assert.Equal(t, "healthy", health["status"])
}
