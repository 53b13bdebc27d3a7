package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// acceptOptions builds the WebSocket upgrade options from the configured
// origin allowlist. An empty allowlist keeps coder/websocket's default
// same-origin check.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if len(s.cfg.AllowedWSOrigins) == 0 {
		return &websocket.AcceptOptions{}
	}
	return &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedWSOrigins}
}

// messageStreamHandler handles GET /api/v1/ws/messages/:agent_id — the
// server-streaming GetMessageStream operation. Each delivered message is
// written as one JSON text frame; the stream closes when the request
// context ends or a write fails. Unregistering the agent does not close it.
func (s *Server) messageStreamHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	// Subscribe before the upgrade so a non-operational agent gets a clean
	// HTTP error instead of an immediately-closed socket.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	stream, err := s.coordinator.Subscribe(ctx, agentID)
	if err != nil {
		return mapCoordinationError(err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), s.acceptOptions())
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	s.writeStream(ctx, conn, agentID, stream)
	return nil
}

// streamUpdatesHandler handles GET /api/v1/ws/updates/:agent_id — the
// bidirectional StreamUpdates operation. Inbound frames are Messages the
// agent sends (fan-in through the router); outbound frames are the
// messages routed to the agent (fan-out from its subscription).
func (s *Server) streamUpdatesHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	stream, err := s.coordinator.Subscribe(ctx, agentID)
	if err != nil {
		return mapCoordinationError(err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), s.acceptOptions())
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Writer runs in its own goroutine; the read loop owns the connection
	// lifetime and cancels the writer on exit.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeStream(ctx, conn, agentID, stream)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or error — exit read loop
			break
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid stream message", "agent_id", agentID, "error", err)
			continue
		}
		msg.Sender = agentID
		if _, err := s.coordinator.SendMessage(msg); err != nil {
			slog.Warn("Stream send failed", "agent_id", agentID, "error", err)
		}
	}

	cancel()
	<-done
	return nil
}

// writeStream pumps a subscription channel into conn until the channel
// closes or ctx is cancelled. Each write carries the configured timeout so
// a stalled client cannot wedge the pump.
func (s *Server) writeStream(ctx context.Context, conn *websocket.Conn, agentID string, stream <-chan models.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Warn("Failed to marshal stream message", "agent_id", agentID, "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Warn("Failed to write to stream", "agent_id", agentID, "error", err)
				return
			}
		}
	}
}
