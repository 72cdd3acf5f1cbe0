// Package requirement defines the value type components use to declare the
// resources they need, and the deterministic grouping of those declarations
// by (resource type, requirement key).
//
// Requirements are never mutated after declaration: every later stage
// (merging, splitting) produces new values. All functions are pure per
// ADR-002: Values as Boundaries.
package requirement

import (
	"errors"
	"fmt"
)

// DefaultPriority is assigned when a component declares no explicit priority.
const DefaultPriority = 10

// =============================================================================
// Requirement Errors
// =============================================================================

var (
	ErrEmptyType        = errors.New("resource type must not be empty")
	ErrEmptyKey         = errors.New("requirement key must not be empty")
	ErrNegativePriority = errors.New("priority must not be negative")
)

// =============================================================================
// Requirement
// =============================================================================

// Requirement is one component's abstract declaration of a resource it needs.
//
// Type selects the provider ("cosmos", "storage", ...). Key is the sharing
// dimension: requirements with equal (Type, Key) are merged into one concrete
// resource; a different Key under the same Type always yields an independent
// resource. Config is opaque to the orchestrator and interpreted by the
// provider's merge strategy.
type Requirement struct {
	Type     string         `json:"type"`
	Key      string         `json:"key"`
	Config   map[string]any `json:"config,omitempty"`
	Priority int            `json:"priority"`
}

// New declares a requirement with the default priority.
func New(resourceType, key string, config map[string]any) Requirement {
	return Requirement{
		Type:     resourceType,
		Key:      key,
		Config:   config,
		Priority: DefaultPriority,
	}
}

// NewWithPriority declares a requirement with an explicit priority.
func NewWithPriority(resourceType, key string, config map[string]any, priority int) Requirement {
	return Requirement{
		Type:     resourceType,
		Key:      key,
		Config:   config,
		Priority: priority,
	}
}

// CompositeKey returns the grouping key, "<type>:<key>".
func (r Requirement) CompositeKey() string {
	return CompositeKey(r.Type, r.Key)
}

// Normalized returns a copy with the default priority applied when none was
// set. A struct-literal declaration leaves Priority at zero; zero always
// means "unset", never "lowest".
func (r Requirement) Normalized() Requirement {
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	return r
}

// Validate checks the structural invariants of a declaration.
func (r Requirement) Validate() error {
	if r.Type == "" {
		return ErrEmptyType
	}
	if r.Key == "" {
		return ErrEmptyKey
	}
	if r.Priority < 0 {
		return ErrNegativePriority
	}
	return nil
}

// CompositeKey builds the grouping key for a (resource type, requirement key)
// pair.
func CompositeKey(resourceType, key string) string {
	return fmt.Sprintf("%s:%s", resourceType, key)
}

// =============================================================================
// Declared Requirement
// =============================================================================

// Declared is a requirement attributed to the component that declared it.
// Index is the position in the full collected list across all components;
// it fixes the declaration order every deterministic stage downstream
// (grouping, first-fit filling, tie-breaking) depends on.
type Declared struct {
	Requirement
	ComponentID string `json:"component_id"`
	Index       int    `json:"index"`
}
