// Package domain holds the shared domain values for weld orchestration runs.
// All types are pure values (no I/O) per ADR-002: Values as Boundaries.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrRunFinished       = errors.New("run already reached a terminal state")
)

// =============================================================================
// Run State
// =============================================================================

// RunState is the lifecycle state of one orchestration run.
type RunState string

const (
	RunStateCreated       RunState = "created"
	RunStateOrchestrating RunState = "orchestrating"
	RunStateInitialized   RunState = "initialized"
	RunStateFailed        RunState = "failed"
)

// validTransitions defines the allowed state transitions.
var validTransitions = map[RunState][]RunState{
	RunStateCreated:       {RunStateOrchestrating},
	RunStateOrchestrating: {RunStateInitialized, RunStateFailed},
	RunStateInitialized:   {}, // Terminal state
	RunStateFailed:        {}, // Terminal state
}

// IsValid reports whether the state is one of the known run states.
func (s RunState) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateInitialized || s == RunStateFailed
}

// ValidateTransition checks if a run state transition is valid.
func ValidateTransition(from, to RunState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// =============================================================================
// Run
// =============================================================================

// Run is the persistent record of one orchestration run.
type Run struct {
	ID             string     `json:"id"`
	Project        string     `json:"project"`
	Environment    string     `json:"environment"`
	State          RunState   `json:"state"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ComponentCount int        `json:"component_count"`
	ResourceCount  int        `json:"resource_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// NewRun creates a run record in the created state.
func NewRun(project, environment string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:          uuid.New().String(),
		Project:     project,
		Environment: environment,
		State:       RunStateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition attempts to move the run to a new state.
func (r *Run) Transition(to RunState) error {
	if r.State.Terminal() {
		return ErrRunFinished
	}
	if err := ValidateTransition(r.State, to); err != nil {
		return err
	}

	r.State = to
	r.UpdatedAt = time.Now().UTC()

	if to.Terminal() {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}

	return nil
}

// TransitionToFailed moves the run to failed with an error message.
func (r *Run) TransitionToFailed(errorMessage string) error {
	if err := r.Transition(RunStateFailed); err != nil {
		return err
	}
	r.ErrorMessage = errorMessage
	return nil
}

// =============================================================================
// Run Records
// =============================================================================

// ComponentStatus is the per-component outcome of the initialization phase.
type ComponentStatus string

const (
	// ComponentStatusInitialized means validation passed and Initialize completed.
	ComponentStatusInitialized ComponentStatus = "initialized"
	// ComponentStatusRejected means the component rejected its injected resources.
	ComponentStatusRejected ComponentStatus = "rejected"
	// ComponentStatusFailed means the factory or Initialize returned an error.
	ComponentStatusFailed ComponentStatus = "failed"
)

// ResourceRecord is the persistent record of one provided resource.
type ResourceRecord struct {
	RunID          string         `json:"run_id"`
	ConcreteKey    string         `json:"concrete_key"`
	ResourceType   string         `json:"resource_type"`
	RequirementKey string         `json:"requirement_key"`
	Name           string         `json:"name"`
	Handle         map[string]any `json:"handle,omitempty"`
	Units          []string       `json:"units,omitempty"`
	Members        []string       `json:"members,omitempty"`
}

// ComponentRecord is the persistent record of one component's outcome.
type ComponentRecord struct {
	RunID         string          `json:"run_id"`
	ComponentID   string          `json:"component_id"`
	ComponentType string          `json:"component_type"`
	Status        ComponentStatus `json:"status"`
	Outputs       map[string]any  `json:"outputs,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
