package transport

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// createSessionHandler handles POST /api/v1/sessions.
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	if len(req.Participants) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one participant is required")
	}

	session, err := s.coordinator.CreateSession(req.Topic, req.Initiator, req.Participants)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusCreated, &SessionResponse{Success: true, SessionID: session.ID, Session: session})
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	session, err := s.coordinator.GetSession(sessionID)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &SessionResponse{Success: true, SessionID: session.ID, Session: session})
}

// joinSessionHandler handles POST /api/v1/sessions/:id/join.
func (s *Server) joinSessionHandler(c *echo.Context) error {
	return s.sessionMembership(c, s.coordinator.JoinSession, "joined session")
}

// leaveSessionHandler handles POST /api/v1/sessions/:id/leave.
func (s *Server) leaveSessionHandler(c *echo.Context) error {
	return s.sessionMembership(c, s.coordinator.LeaveSession, "left session")
}

func (s *Server) sessionMembership(c *echo.Context, apply func(sessionID, agentID string) error, message string) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	var req SessionMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}
	if err := apply(sessionID, req.AgentID); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true, Message: message})
}

// sendSessionMessageHandler handles POST /api/v1/sessions/:id/messages.
func (s *Server) sendSessionMessageHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	var req SessionMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.From == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "from and content are required")
	}

	if _, err := s.coordinator.SendSessionMessage(sessionID, req.From, req.Content); err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Success: true})
}

// recordDecisionHandler handles POST /api/v1/sessions/:id/decisions.
func (s *Server) recordDecisionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	var req RecordDecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if req.Mechanism == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mechanism is required")
	}

	decision, err := s.coordinator.RecordDecision(sessionID, req.Question, req.Mechanism, req.Votes, req.Quorum)
	if err != nil {
		return mapCoordinationError(err)
	}
	return c.JSON(http.StatusOK, &DecisionResponse{Success: true, Decision: decision})
}
