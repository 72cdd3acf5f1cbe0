package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupHandler(t *testing.T) (*Handler, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(s, logger, "test"), s
}

func seedRun(t *testing.T, s store.Store) *domain.Run {
	t.Helper()
	run := domain.NewRun("acme", "prod")
	run.ComponentCount = 2
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

func doRequest(t *testing.T, h *Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// =============================================================================
// Health Endpoints
// =============================================================================

func TestHandler_Health(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestHandler_Ready(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
}

// =============================================================================
// Run Endpoints
// =============================================================================

func TestHandler_ListRuns(t *testing.T) {
	h, s := setupHandler(t)
	seedRun(t, s)
	seedRun(t, s)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListRunsResponse](t, rec)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Runs, 2)
	assert.Equal(t, "acme", resp.Runs[0].Project)
}

func TestHandler_ListRunsPagination(t *testing.T) {
	h, s := setupHandler(t)
	for i := 0; i < 3; i++ {
		seedRun(t, s)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs?limit=2&offset=1")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListRunsResponse](t, rec)
	assert.Len(t, resp.Runs, 2)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
}

func TestHandler_GetRun(t *testing.T) {
	h, s := setupHandler(t)
	run := seedRun(t, s)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/"+run.ID)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RunResponse](t, rec)
	assert.Equal(t, run.ID, resp.ID)
	assert.Equal(t, "created", resp.State)
	assert.Equal(t, 2, resp.ComponentCount)
}

func TestHandler_GetRunNotFound(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "run_not_found", resp.Code)
}

// =============================================================================
// Run Sub-Collections
// =============================================================================

func TestHandler_ListRunResources(t *testing.T) {
	h, s := setupHandler(t)
	run := seedRun(t, s)
	require.NoError(t, s.CreateResource(context.Background(), &domain.ResourceRecord{
		RunID:          run.ID,
		ConcreteKey:    "storage:assets",
		ResourceType:   "storage",
		RequirementKey: "assets",
		Name:           "weld_run_storage",
		Handle:         map[string]any{"endpoint": "https://example.net"},
		Units:          []string{"media"},
	}))

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/"+run.ID+"/resources")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListResourcesResponse](t, rec)
	assert.Equal(t, run.ID, resp.RunID)
	require.Len(t, resp.Resources, 1)
	assert.Equal(t, "storage:assets", resp.Resources[0].ConcreteKey)
	assert.Equal(t, "https://example.net", resp.Resources[0].Handle["endpoint"])
	assert.Equal(t, []string{"media"}, resp.Resources[0].Units)
}

func TestHandler_ListRunResourcesNotFound(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/missing/resources")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListRunComponents(t *testing.T) {
	h, s := setupHandler(t)
	run := seedRun(t, s)
	require.NoError(t, s.CreateComponent(context.Background(), &domain.ComponentRecord{
		RunID:         run.ID,
		ComponentID:   "users-api",
		ComponentType: "webapp",
		Status:        domain.ComponentStatusInitialized,
		Outputs:       map[string]any{"url": "https://users.example.net"},
	}))

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/"+run.ID+"/components")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListComponentsResponse](t, rec)
	require.Len(t, resp.Components, 1)
	assert.Equal(t, "users-api", resp.Components[0].ComponentID)
	assert.Equal(t, "initialized", resp.Components[0].Status)
	assert.Equal(t, "https://users.example.net", resp.Components[0].Outputs["url"])
}

// =============================================================================
// OpenAPI
// =============================================================================

func TestHandler_OpenAPISpec(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/openapi.json")

	assert.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&spec))
	assert.Equal(t, "3.0.3", spec["openapi"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/runs")
	assert.Contains(t, paths, "/api/v1/runs/{id}")
	assert.Contains(t, paths, "/api/v1/runs/{id}/resources")
	assert.Contains(t, paths, "/api/v1/runs/{id}/components")
}

func TestHandler_RequestIDHeader(t *testing.T) {
	h, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/health")

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
