package api

import "time"

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the response for the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RunResponse is the response for run operations.
type RunResponse struct {
	ID             string     `json:"id"`
	Project        string     `json:"project"`
	Environment    string     `json:"environment"`
	State          string     `json:"state"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ComponentCount int        `json:"component_count"`
	ResourceCount  int        `json:"resource_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ResourceResponse describes one provided resource of a run.
type ResourceResponse struct {
	ConcreteKey    string         `json:"concrete_key"`
	ResourceType   string         `json:"resource_type"`
	RequirementKey string         `json:"requirement_key"`
	Name           string         `json:"name"`
	Handle         map[string]any `json:"handle,omitempty"`
	Units          []string       `json:"units,omitempty"`
	Members        []string       `json:"members,omitempty"`
}

// ListResourcesResponse is the response for listing the resources of a run.
type ListResourcesResponse struct {
	RunID     string             `json:"run_id"`
	Resources []ResourceResponse `json:"resources"`
	Total     int                `json:"total"`
}

// ComponentResponse describes one component outcome of a run.
type ComponentResponse struct {
	ComponentID   string         `json:"component_id"`
	ComponentType string         `json:"component_type"`
	Status        string         `json:"status"`
	Outputs       map[string]any `json:"outputs,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// ListComponentsResponse is the response for listing the components of a run.
type ListComponentsResponse struct {
	RunID      string              `json:"run_id"`
	Components []ComponentResponse `json:"components"`
	Total      int                 `json:"total"`
}
