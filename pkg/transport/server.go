// Package transport exposes the coordination RPC surface over HTTP/JSON
// (unary operations) and WebSocket (message streams).
package transport

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/fugue-ai/rhema-coordinator/pkg/config"
	"github.com/fugue-ai/rhema-coordinator/pkg/facade"
	"github.com/fugue-ai/rhema-coordinator/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	cfg         *config.TransportConfig
	coordinator *facade.Coordinator
}

// NewServer creates a new API server with Echo v5.
func NewServer(cfg *config.TransportConfig, coordinator *facade.Coordinator) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		cfg:         cfg,
		coordinator: coordinator,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	// Server-wide body size limit (1 MB) — coordination payloads are small
	// control messages; multi-MB bodies are rejected at the HTTP read level
	// before deserialization.
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	// Health check
	s.echo.GET("/health", s.healthHandler)

	// API v1
	v1 := s.echo.Group("/api/v1")

	// Agent lifecycle.
	v1.POST("/agents", s.registerAgentHandler)
	v1.GET("/agents", s.getAllAgentsHandler)
	v1.GET("/agents/:id", s.getAgentHandler)
	v1.DELETE("/agents/:id", s.unregisterAgentHandler)
	v1.PUT("/agents/:id/status", s.updateAgentStatusHandler)
	v1.POST("/agents/:id/heartbeat", s.heartbeatHandler)

	// Messaging.
	v1.POST("/messages", s.sendMessageHandler)
	v1.GET("/messages", s.messageHistoryHandler)

	// Sessions.
	v1.POST("/sessions", s.createSessionHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/join", s.joinSessionHandler)
	v1.POST("/sessions/:id/leave", s.leaveSessionHandler)
	v1.POST("/sessions/:id/messages", s.sendSessionMessageHandler)
	v1.POST("/sessions/:id/decisions", s.recordDecisionHandler)

	// Resources.
	v1.POST("/resources", s.addResourceHandler)
	v1.DELETE("/resources/:id", s.removeResourceHandler)
	v1.POST("/resources/:id/request", s.requestResourceHandler)
	v1.POST("/resources/:id/release", s.releaseResourceHandler)

	// Conflicts.
	v1.POST("/conflicts/detect", s.detectConflictHandler)
	v1.POST("/conflicts/:id/resolve", s.resolveConflictHandler)
	v1.GET("/conflicts", s.getConflictsHandler)

	// Consolidated stats.
	v1.GET("/stats", s.getStatsHandler)

	// WebSocket endpoints for real-time message streaming.
	v1.GET("/ws/messages/:agent_id", s.messageStreamHandler)
	v1.GET("/ws/updates/:agent_id", s.streamUpdatesHandler)
}

// Start starts the HTTP server on the given address. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health. Returns a minimal response suitable
// for unauthenticated liveness probes; component health is derived from
// the consolidated stats snapshot, which touches every component lock
// briefly and so doubles as a responsiveness check.
func (s *Server) healthHandler(c *echo.Context) error {
	stats := s.coordinator.GetStats()
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
		Agents:  stats.TotalAgents,
	})
}
