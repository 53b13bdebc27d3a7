// Package e2e boots the full coordinator (facade + HTTP/WebSocket
// transport) on a random local port and exercises it over the wire.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/config"
	"github.com/fugue-ai/rhema-coordinator/pkg/facade"
	"github.com/fugue-ai/rhema-coordinator/pkg/transport"
)

// TestApp is one running coordinator instance bound to an OS-assigned port.
type TestApp struct {
	Coordinator *facade.Coordinator
	BaseURL     string
	WSURL       string
}

// StartTestApp boots a coordinator with fast reaper ticks and serves it on
// 127.0.0.1:0; shutdown is registered on t.Cleanup.
func StartTestApp(t *testing.T) *TestApp {
	t.Helper()

	cfg := &config.Config{
		Coordination: config.DefaultCoordinationConfig(),
		Conflict:     config.DefaultConflictConfig(),
		Persistence:  config.DefaultPersistenceConfig(),
		Transport:    config.DefaultTransportConfig(),
	}
	cfg.Coordination.HeartbeatInterval = 20 * time.Millisecond

	coordinator := facade.New(cfg, nil)
	coordinator.Start()
	t.Cleanup(coordinator.Stop)

	server := transport.NewServer(cfg.Transport, coordinator)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		if err := server.StartWithListener(ln); err != nil && err != http.ErrServerClosed {
			t.Logf("server exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	addr := ln.Addr().String()
	return &TestApp{
		Coordinator: coordinator,
		BaseURL:     "http://" + addr,
		WSURL:       "ws://" + addr,
	}
}

func (app *TestApp) postJSON(t *testing.T, path string, body any, expectedStatus int) map[string]any {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: %s", path, string(raw))

	parsed := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return parsed
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: %s", path, string(raw))

	parsed := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return parsed
}

// RegisterAgent registers an agent over the wire.
func (app *TestApp) RegisterAgent(t *testing.T, id string) {
	t.Helper()
	app.postJSON(t, "/api/v1/agents", map[string]any{"id": id, "name": id, "type": "worker"}, http.StatusCreated)
}
