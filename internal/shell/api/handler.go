// Package api provides HTTP handlers for inspecting weld orchestration runs.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/shell/api/openapi"
	"github.com/artpar/weld/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store   store.Store
	logger  *slog.Logger
	version string
	spec    *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, l *slog.Logger, version string) *Handler {
	if l == nil {
		l = slog.Default()
	}

	spec := openapi.NewGenerator(openapi.WithVersion(version))
	spec.RegisterResource(openapi.ResourceInfo{
		Name:  "runs",
		Model: RunResponse{},
		SubCollections: []openapi.SubResource{
			{Name: "resources", Model: ResourceResponse{}},
			{Name: "components", Model: ComponentResponse{}},
		},
	})

	return &Handler{
		store:   s,
		logger:  l.With("component", "api"),
		version: version,
		spec:    spec,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", h.spec.Handler())

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.handleListRuns)
			r.Get("/{id}", h.handleGetRun)
			r.Get("/{id}/resources", h.handleListRunResources)
			r.Get("/{id}/components", h.handleListRunComponents)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if _, err := h.store.ListRuns(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	runs, err := h.store.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  len(runs),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&run))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleListRunResources(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	records, err := h.store.ListResourcesByRun(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list resources", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list resources", "internal_error")
		return
	}

	resp := ListResourcesResponse{
		RunID:     id,
		Resources: make([]ResourceResponse, 0, len(records)),
		Total:     len(records),
	}
	for _, rec := range records {
		resp.Resources = append(resp.Resources, ResourceResponse{
			ConcreteKey:    rec.ConcreteKey,
			ResourceType:   rec.ResourceType,
			RequirementKey: rec.RequirementKey,
			Name:           rec.Name,
			Handle:         rec.Handle,
			Units:          rec.Units,
			Members:        rec.Members,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListRunComponents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	records, err := h.store.ListComponentsByRun(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list components", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list components", "internal_error")
		return
	}

	resp := ListComponentsResponse{
		RunID:      id,
		Components: make([]ComponentResponse, 0, len(records)),
		Total:      len(records),
	}
	for _, rec := range records {
		resp.Components = append(resp.Components, ComponentResponse{
			ComponentID:   rec.ComponentID,
			ComponentType: rec.ComponentType,
			Status:        string(rec.Status),
			Outputs:       rec.Outputs,
			ErrorMessage:  rec.ErrorMessage,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func runToResponse(run *domain.Run) RunResponse {
	return RunResponse{
		ID:             run.ID,
		Project:        run.Project,
		Environment:    run.Environment,
		State:          string(run.State),
		ErrorMessage:   run.ErrorMessage,
		ComponentCount: run.ComponentCount,
		ResourceCount:  run.ResourceCount,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
		FinishedAt:     run.FinishedAt,
	}
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
