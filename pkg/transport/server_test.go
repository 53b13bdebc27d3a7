package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/config"
	"github.com/fugue-ai/rhema-coordinator/pkg/facade"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Coordination: config.DefaultCoordinationConfig(),
		Conflict:     config.DefaultConflictConfig(),
		Persistence:  config.DefaultPersistenceConfig(),
		Transport:    config.DefaultTransportConfig(),
	}
	return NewServer(cfg.Transport, facade.New(cfg, nil))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndGetAgent(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1","name":"alpha","type":"worker"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/v1/agents/A1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "alpha", resp.Agent.Name)
}

func TestRegisterRequiresID(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodPost, "/api/v1/agents", `{"name":"anonymous"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
}

func TestGetUnknownAgentIs404(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/agents/ghost", "").Code)
}

func TestSendMessageAndHeartbeatDrain(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A2"}`).Code)

	rec := do(s, http.MethodPost, "/api/v1/messages",
		`{"sender":"A1","recipients":["A2"],"content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sendResp SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sendResp))
	assert.True(t, sendResp.Success)
	require.Len(t, sendResp.Delivery, 1)

	rec = do(s, http.MethodPost, "/api/v1/agents/A2/heartbeat", `{"status":"idle","health":"healthy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var hbResp HeartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hbResp))
	require.Len(t, hbResp.PendingMessages, 1)
	assert.Equal(t, "hi", hbResp.PendingMessages[0].Content)
}

func TestSendMessageRequiresRecipients(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	rec := do(s, http.MethodPost, "/api/v1/messages", `{"sender":"A1","content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResourceRequestReleaseRoundTrip(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A2"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/resources", `{"id":"R","capacity":1}`).Code)

	rec := do(s, http.MethodPost, "/api/v1/resources/R/request", `{"agent_id":"A1","timeout_s":60}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RequestResourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Acquired)

	rec = do(s, http.MethodPost, "/api/v1/resources/R/request", `{"agent_id":"A2","timeout_s":60}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Acquired)
	assert.Equal(t, "at_capacity", resp.Outcome)

	rec = do(s, http.MethodPost, "/api/v1/resources/R/release", `{"agent_id":"A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/api/v1/resources/R/request", `{"agent_id":"A2","timeout_s":60}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Acquired)
}

func TestReleaseByNonOwnerForbidden(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A2"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/resources", `{"id":"R","capacity":2}`).Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/v1/resources/R/request", `{"agent_id":"A1","timeout_s":60}`).Code)

	rec := do(s, http.MethodPost, "/api/v1/resources/R/release", `{"agent_id":"A2"}`)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A2"}`).Code)

	rec := do(s, http.MethodPost, "/api/v1/sessions",
		`{"topic":"deploy","initiator":"A1","participants":["A1","A2"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sessResp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessResp))
	require.NotEmpty(t, sessResp.SessionID)

	rec = do(s, http.MethodPost, "/api/v1/sessions/"+sessResp.SessionID+"/messages",
		`{"from":"A1","content":"ready to ship?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/v1/sessions/"+sessResp.SessionID+"/decisions",
		`{"question":"ship it","mechanism":"simple_majority","quorum":2,
		  "votes":[{"agent_id":"A1","value":"approve"},{"agent_id":"A2","value":"approve"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decResp DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decResp))
	assert.Equal(t, "approved", string(decResp.Decision.Outcome))
}

func TestConflictDetectAndResolve(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/v1/conflicts/detect",
		`{"resource_id":"R","agents":["A1","A2"],"type":"capacity","description":"both want R"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var confResp ConflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confResp))
	require.NotNil(t, confResp.Conflict)

	rec = do(s, http.MethodPost, "/api/v1/conflicts/"+confResp.Conflict.ID+"/resolve",
		`{"strategy":"manual_resolution","resolution_data":"operator picked A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/conflicts?resource_id=R", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp ConflictListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Conflicts, 1)
	assert.True(t, listResp.Conflicts[0].Resolved)
}

func TestDetectConflictRequiresTwoAgents(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodPost, "/api/v1/conflicts/detect",
		`{"resource_id":"R","agents":["A1"],"type":"capacity"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndHealth(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/api/v1/agents", `{"id":"A1"}`).Code)

	rec := do(s, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats facade.CoordinationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalAgents)

	rec = do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestMessageHistoryLimitValidation(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/messages?limit=zero", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/messages?limit=-5", "").Code)
}

func TestGracefulShutdownWithoutStart(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
