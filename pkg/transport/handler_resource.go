package transport

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
	"github.com/fugue-ai/rhema-coordinator/pkg/resources"
)

// addResourceHandler handles POST /api/v1/resources.
func (s *Server) addResourceHandler(c *echo.Context) error {
	var res models.Resource
	if err := c.Bind(&res); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if res.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resource id is required")
	}
	if res.Capacity < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "capacity must be at least 1")
	}

	if err := s.coordinator.AddResource(res); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusCreated, &StatusResponse{Success: true, Message: "resource added"})
}

// removeResourceHandler handles DELETE /api/v1/resources/:id.
func (s *Server) removeResourceHandler(c *echo.Context) error {
	resourceID := c.Param("id")
	if resourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resource id is required")
	}
	if err := s.coordinator.RemoveResource(resourceID); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true, Message: "resource removed"})
}

// requestResourceHandler handles POST /api/v1/resources/:id/request.
func (s *Server) requestResourceHandler(c *echo.Context) error {
	resourceID := c.Param("id")
	if resourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resource id is required")
	}
	var req RequestResourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}
	if req.TimeoutSeconds < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "timeout_s must be non-negative")
	}

	outcome, err := s.coordinator.RequestResource(resourceID, req.AgentID, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		return mapCoordinationError(err)
	}
	acquired := outcome == resources.Acquired || outcome == resources.AlreadyHeld
	return c.JSON(http.StatusOK, &RequestResourceResponse{
		Success:  true,
		Acquired: acquired,
		Outcome:  string(outcome),
	})
}

// releaseResourceHandler handles POST /api/v1/resources/:id/release.
func (s *Server) releaseResourceHandler(c *echo.Context) error {
	resourceID := c.Param("id")
	if resourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resource id is required")
	}
	var req ReleaseResourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}

	if err := s.coordinator.ReleaseResource(resourceID, req.AgentID); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true, Message: "resource released"})
}
