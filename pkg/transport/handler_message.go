package transport

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// sendMessageHandler handles POST /api/v1/messages.
func (s *Server) sendMessageHandler(c *echo.Context) error {
	var msg models.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if msg.Sender == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sender is required")
	}
	if len(msg.Recipients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one recipient is required")
	}

	result, err := s.coordinator.SendMessage(msg)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &SendMessageResponse{
		Success:   result.Success,
		MessageID: result.MessageID,
		Delivery:  result.Delivery,
		Error:     result.Error,
	})
}

// messageHistoryHandler handles GET /api/v1/messages.
func (s *Server) messageHistoryHandler(c *echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		limit = n
	}
	agentID := c.QueryParam("agent_id")

	messages := s.coordinator.GetMessageHistory(limit, agentID)
	if messages == nil {
		messages = []models.Message{}
	}
	return c.JSON(http.StatusOK, &MessageHistoryResponse{Messages: messages})
}
