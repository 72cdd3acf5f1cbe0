// Package backend implements the orchestrator: it consumes component
// definitions, drives the three-phase lifecycle (collect → analyze/merge/
// split → create → initialize), owns the run state, and aggregates errors
// so an author sees every configuration problem at once.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Backend Errors
// =============================================================================

var (
	// ErrDuplicateComponent marks a reused component ID. Fatal at
	// AddComponent time.
	ErrDuplicateComponent = errors.New("component id already added")

	// ErrUnknownResourceType marks a declared resource type no registered
	// provider accepts. Accumulated across groups, fatal.
	ErrUnknownResourceType = errors.New("no provider for resource type")

	// ErrMergedRejected marks a merged requirement the provider's
	// validation refused. Accumulated across groups, fatal.
	ErrMergedRejected = errors.New("merged requirement rejected by provider")

	// ErrComponentFailed marks a component that could not complete the
	// initialization phase. Accumulated per component.
	ErrComponentFailed = errors.New("component failed to initialize")

	// ErrIllegalState marks a mutation attempted outside the allowed
	// backend state. Fatal, immediate.
	ErrIllegalState = errors.New("operation not allowed in current backend state")

	// ErrProvider wraps a failure surfaced by a provider's creation call.
	// Propagated, never retried internally.
	ErrProvider = errors.New("provider creation failed")

	// ErrUnknownComponent marks a lookup of a component the backend never
	// initialized.
	ErrUnknownComponent = errors.New("component not found")
)

// =============================================================================
// Aggregate Error
// =============================================================================

// AggregateError collects every error raised in one phase. The analysis
// phase raises one aggregate spanning all groups; the initialization phase
// raises one spanning all failed components.
type AggregateError struct {
	Phase string
	Errs  []error
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s phase failed with %d error(s)", e.Phase, len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errs
}

// =============================================================================
// Typed Errors
// =============================================================================

// UnknownTypeError reports a requirement group whose resource type no
// provider accepts.
type UnknownTypeError struct {
	ResourceType string
	CompositeKey string
	Components   []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no provider for resource type %q (group %q, declared by %v)",
		e.ResourceType, e.CompositeKey, e.Components)
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownResourceType
}

// RejectedError reports a merged requirement the provider's validation
// refused before any creation call.
type RejectedError struct {
	CompositeKey string
	Reason       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("merged requirement %q rejected: %s", e.CompositeKey, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrMergedRejected
}

// ProviderError wraps the failure of one creation call.
type ProviderError struct {
	ResourceType string
	ConcreteKey  string
	Err          error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q failed to create %q: %v", e.ResourceType, e.ConcreteKey, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// ComponentFailure records one component's outcome when its factory,
// validation, or initialization failed. Failures never abort sibling
// components; they are aggregated at the end of the phase.
type ComponentFailure struct {
	ComponentID string
	Stage       string // "factory", "validate" or "initialize"
	Reason      string
	Err         error
}

func (e *ComponentFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("component %q failed at %s: %v", e.ComponentID, e.Stage, e.Err)
	}
	return fmt.Sprintf("component %q failed at %s: %s", e.ComponentID, e.Stage, e.Reason)
}

func (e *ComponentFailure) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrComponentFailed, e.Err}
	}
	return []error{ErrComponentFailed}
}
