package transport

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// detectConflictHandler handles POST /api/v1/conflicts/detect.
func (s *Server) detectConflictHandler(c *echo.Context) error {
	var req DetectConflictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Agents) < 2 {
		return echo.NewHTTPError(http.StatusBadRequest, "a conflict requires at least two agents")
	}
	if req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type is required")
	}

	conflict, err := s.coordinator.DetectConflict(req.ResourceID, req.Agents, req.Type, req.Description)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusCreated, &ConflictResponse{Success: true, Conflict: conflict})
}

// resolveConflictHandler handles POST /api/v1/conflicts/:id/resolve.
func (s *Server) resolveConflictHandler(c *echo.Context) error {
	conflictID := c.Param("id")
	if conflictID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conflict id is required")
	}
	var req ResolveConflictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Strategy == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "strategy is required")
	}

	if err := s.coordinator.ResolveConflict(conflictID, req.Strategy, req.ResolutionData); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true, Message: "conflict resolved"})
}

// getConflictsHandler handles GET /api/v1/conflicts.
func (s *Server) getConflictsHandler(c *echo.Context) error {
	conflicts := s.coordinator.GetConflicts(c.QueryParam("resource_id"), c.QueryParam("agent_id"))
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}
	return c.JSON(http.StatusOK, &ConflictListResponse{Conflicts: conflicts})
}
