// Package component defines the author-facing contract of the orchestrator:
// the inert definition value produced when a component is declared, the
// explicit probe/provision build mode, and the interface a live component
// must satisfy to be orchestrated.
//
// A Definition is a plain immutable value returned by the free function
// Define; it carries no hidden identity and causes no side effects until a
// backend consumes it.
package component

import (
	"context"
	"errors"

	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
)

// =============================================================================
// Definition Errors
// =============================================================================

var (
	ErrEmptyID      = errors.New("component id must not be empty")
	ErrEmptyType    = errors.New("component type must not be empty")
	ErrNilFactory   = errors.New("component factory must not be nil")
	ErrTypeMismatch = errors.New("component has unexpected type")
)

// =============================================================================
// Build Mode
// =============================================================================

// Mode tells a factory why it is being invoked. It is passed explicitly in
// the build context, never inferred from the shape of the surroundings.
type Mode string

const (
	// ModeProbe builds a component only to query its requirements. No
	// concrete resource exists yet; the component must not touch the
	// outside world.
	ModeProbe Mode = "probe"

	// ModeProvision builds the component that will receive its resolved
	// resources and run its own setup.
	ModeProvision Mode = "provision"
)

// BuildContext carries the build mode and the deployment scope into a
// component factory.
type BuildContext struct {
	Mode  Mode
	Scope domain.Scope
}

// Probing reports whether the factory is being invoked in probe mode.
func (c BuildContext) Probing() bool {
	return c.Mode == ModeProbe
}

// =============================================================================
// Component Contract
// =============================================================================

// Factory builds a live component from its declared configuration.
// Factories are invoked twice per orchestration: once in probe mode to
// collect requirements, once in provision mode before initialization.
type Factory func(ctx BuildContext, config map[string]any) (Component, error)

// Component is the contract a live component must satisfy.
//
// Requirements and ValidateResources must be pure with respect to the
// outside world: both are called before, or instead of, any provisioning.
// A requirement query that provisions something is a contract defect the
// orchestrator cannot detect. Initialize is called at most once and only
// after ValidateResources passed; Outputs is meaningful only after
// Initialize succeeded.
type Component interface {
	// Requirements returns the component's declared resource requirements.
	// Pure: callable in probe mode, before any resource exists.
	Requirements() []requirement.Requirement

	// ValidateResources checks the injected scoped view before setup runs.
	// Pure: always callable before Initialize.
	ValidateResources(scoped *resource.ScopedView) validation.Result

	// Initialize hands the component its resolved resources. May have side
	// effects; called at most once.
	Initialize(ctx context.Context, scoped *resource.ScopedView, scope domain.Scope) error

	// Outputs returns the values the component exposes downstream.
	Outputs() map[string]any
}

// =============================================================================
// Definition
// =============================================================================

// Definition is the inert value produced when an author declares a
// component: identifier, type tag, opaque configuration, and the factory
// that builds the live component. Immutable; consumed exactly once by a
// backend.
type Definition struct {
	ID     string
	Type   string
	Config map[string]any
	Build  Factory
}

// Define declares a component. The returned value is side-effect free;
// nothing happens until a backend orchestrates it.
func Define(id, componentType string, config map[string]any, build Factory) Definition {
	return Definition{
		ID:     id,
		Type:   componentType,
		Config: config,
		Build:  build,
	}
}

// Validate checks the structural invariants of a definition.
func (d Definition) Validate() error {
	if d.ID == "" {
		return ErrEmptyID
	}
	if d.Type == "" {
		return ErrEmptyType
	}
	if d.Build == nil {
		return ErrNilFactory
	}
	return nil
}
