package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/internal/application/orchestrator"
	"github.com/aescanero/markflow/internal/application/workers"
	eventsmemory "github.com/aescanero/markflow/pkg/adapters/events/memory"
	"github.com/aescanero/markflow/pkg/adapters/metrics/nop"
	storagememory "github.com/aescanero/markflow/pkg/adapters/storage/memory"
	workflowsmemory "github.com/aescanero/markflow/pkg/adapters/workflows/memory"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoWorkflow() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:   "echo",
		Name: "Echo",
		Tasks: []domain.TaskDefinition{{
			Name:     "Echo",
			Order:    1,
			Requires: []string{"text"},
			Provides: []string{"echo"},
			Resolver: domain.ResolverRef{
				Name:    "Set",
				Params:  map[string]domain.ParamBinding{"text": domain.FromPool("text")},
				Results: map[string]string{"text": "echo"},
			},
		}},
	}
}

func brokenWorkflow() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:   "broken",
		Name: "Broken",
		Tasks: []domain.TaskDefinition{
			{
				Name:     "Misconfigured",
				Order:    1,
				Provides: []string{"misconfigured"},
				Resolver: domain.ResolverRef{Name: "Misconfigured"},
			},
			{
				Name:     "Down",
				Order:    2,
				Provides: []string{"down"},
				Resolver: domain.ResolverRef{Name: "Down"},
			},
		},
	}
}

type testServer struct {
	server  *Server
	manager *orchestrator.Manager
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	reg := engine.NewRegistry()
	require.NoError(t, reg.Register("Set", engine.ResolverFunc(func(_ context.Context, p engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
		return engine.Outputs(p), nil
	})))
	require.NoError(t, reg.Register("Misconfigured", engine.ResolverFunc(func(context.Context, engine.Params, *engine.ExecutionContext) (engine.Outputs, error) {
		return nil, fmt.Errorf("%w: prompt", domain.ErrMissingParam)
	})))
	require.NoError(t, reg.Register("Down", engine.ResolverFunc(func(context.Context, engine.Params, *engine.ExecutionContext) (engine.Outputs, error) {
		return nil, fmt.Errorf("%w: upstream returned 503", domain.ErrExternalService)
	})))

	workflows, err := workflowsmemory.NewInMemoryWorkflowStore(echoWorkflow(), brokenWorkflow())
	require.NoError(t, err)

	manager := orchestrator.NewManager(workflows, storagememory.NewInMemoryStateStorage(),
		eventsmemory.NewInMemoryEventBus(), nop.Collector{}, reg,
		engine.NewBinder(zap.NewNop(), nil), zap.NewNop(), time.Minute)

	pool := workers.NewPool(2, 10, manager, nop.Collector{}, zap.NewNop(), time.Hour)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	manager.SetDispatcher(pool)

	server := NewServer(&Config{
		Port:         0,
		Orchestrator: manager,
		Health:       pool.Health(),
		Gatherer:     prometheus.NewRegistry(),
		APIToken:     token,
		Logger:       zap.NewNop(),
	})
	return &testServer{server: server, manager: manager}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["orchestrator"])
	assert.Equal(t, float64(2), checks["workers"].(map[string]interface{})["total_workers"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetWorkflows(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Workflows []WorkflowSummary `json:"workflows"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "broken", list.Workflows[0].ID)
	assert.Equal(t, []string{"Echo"}, list.Workflows[1].Tasks)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/echo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Echo", decodeBody(t, rec)["name"])

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestExecuteWorkflowSync(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/echo/execute", ExecuteRequest{
		Input:  map[string]interface{}{"text": "hello"},
		Output: []string{"echo"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.RunState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, state.Output)

	rec = ts.do(t, http.MethodGet, "/api/v1/runs/"+state.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])
}

func TestExecuteWorkflowErrors(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"missing output", "/api/v1/workflows/echo/execute", map[string]interface{}{"input": map[string]interface{}{}}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown workflow", "/api/v1/workflows/missing/execute", ExecuteRequest{Output: []string{"echo"}}, http.StatusNotFound, "NOT_FOUND"},
		{"unsatisfiable", "/api/v1/workflows/echo/execute", ExecuteRequest{Output: []string{"echo"}}, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR"},
		{"missing param", "/api/v1/workflows/broken/execute", ExecuteRequest{Output: []string{"misconfigured"}, Skip: []string{"Down"}}, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR"},
		{"external failure", "/api/v1/workflows/broken/execute", ExecuteRequest{Output: []string{"down"}, Skip: []string{"Misconfigured"}}, http.StatusInternalServerError, "EXECUTION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestExecuteWorkflowFailureCarriesRunState(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/broken/execute", ExecuteRequest{Output: []string{"down"}, Skip: []string{"Misconfigured"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	details := decodeBody(t, rec)["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "failed", details["status"])
	assert.NotEmpty(t, details["run_id"])
}

func TestExecuteWorkflowAsync(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/echo/execute?async=true", ExecuteRequest{
		Input:  map[string]interface{}{"text": "later"},
		Output: []string{"echo"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.RunID)
	assert.Equal(t, "submitted", submitted.Status)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/v1/runs/"+submitted.RunID, nil)
		return rec.Code == http.StatusOK && decodeBody(t, rec)["status"] == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	state, err := ts.manager.GetRun(context.Background(), submitted.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"echo": "later"}, state.Output)
}

func TestGetRunNotFound(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/v1/runs/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/workflows/echo/execute", ExecuteRequest{
		Input:  map[string]interface{}{"text": "done"},
		Output: []string{"echo"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	runID := decodeBody(t, rec)["run_id"].(string)

	rec = ts.do(t, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CANCELLATION_FAILED", errorCode(t, rec))
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// health stays open for probes
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodOptions, "/api/v1/workflows", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
