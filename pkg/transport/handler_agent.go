package transport

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// registerAgentHandler handles POST /api/v1/agents.
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var req models.AgentInfo
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	agent, err := s.coordinator.RegisterAgent(req)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusCreated, &AgentResponse{Success: true, Agent: agent})
}

// unregisterAgentHandler handles DELETE /api/v1/agents/:id.
func (s *Server) unregisterAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	if err := s.coordinator.UnregisterAgent(agentID); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true, Message: "agent unregistered"})
}

// updateAgentStatusHandler handles PUT /api/v1/agents/:id/status.
func (s *Server) updateAgentStatusHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	var req UpdateAgentStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	if err := s.coordinator.UpdateAgentStatus(agentID, req.Status, req.Health, req.Task); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true})
}

// getAgentHandler handles GET /api/v1/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	agent, err := s.coordinator.GetAgentInfo(agentID)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &AgentResponse{Success: true, Agent: agent})
}

// getAllAgentsHandler handles GET /api/v1/agents.
func (s *Server) getAllAgentsHandler(c *echo.Context) error {
	agents := s.coordinator.GetAllAgents()
	return c.JSON(http.StatusOK, &AgentListResponse{Agents: agents})
}

// heartbeatHandler handles POST /api/v1/agents/:id/heartbeat.
func (s *Server) heartbeatHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		req.Status = models.AgentStatusIdle
	}
	if req.Health == "" {
		req.Health = models.AgentHealthHealthy
	}

	pending, err := s.coordinator.Heartbeat(agentID, req.Status, req.Health, req.Task, req.Metrics)
	if err != nil {
		return mapCoordinationError(err)
	}
	if pending == nil {
		pending = []models.Message{}
	}
	return c.JSON(http.StatusOK, &HeartbeatResponse{Success: true, PendingMessages: pending})
}
