package transport

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getStatsHandler handles GET /api/v1/stats.
func (s *Server) getStatsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.coordinator.GetStats())
}
