// Package resource holds the resolved output of an orchestration run: the
// map from concrete resource key to provided resource handle, and the
// per-component scoped views that components receive at initialization.
//
// The map is written only by the backend during the single-threaded
// orchestration stage and frozen before components see it, so readers need
// no locking. A write after Freeze is a backend bug and panics.
package resource

import (
	"errors"
	"fmt"
)

// =============================================================================
// Resource Map Errors
// =============================================================================

var (
	ErrDuplicateKey = errors.New("concrete key already provided")
	ErrUnknownKey   = errors.New("concrete key not in resource map")
)

// =============================================================================
// Provided Resource
// =============================================================================

// Provided is the opaque handle a provider returned for one concrete bucket.
type Provided struct {
	ConcreteKey  string         `json:"concrete_key"`
	CompositeKey string         `json:"composite_key"`
	Type         string         `json:"type"`
	Key          string         `json:"key"`
	Name         string         `json:"name"`
	Handle       map[string]any `json:"handle,omitempty"`
	Units        []string       `json:"units,omitempty"`
	Members      []string       `json:"members,omitempty"`
}

// =============================================================================
// Resource Map
// =============================================================================

// Map maps concrete keys to provided resources, iterable in creation order.
type Map struct {
	frozen bool
	order  []string
	byKey  map[string]Provided
}

// NewMap returns an empty, unfrozen resource map.
func NewMap() *Map {
	return &Map{byKey: make(map[string]Provided)}
}

// Add records a provided resource. Duplicate concrete keys are an error.
func (m *Map) Add(p Provided) error {
	if m.frozen {
		panic("resource map is frozen")
	}
	if _, exists := m.byKey[p.ConcreteKey]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, p.ConcreteKey)
	}
	m.byKey[p.ConcreteKey] = p
	m.order = append(m.order, p.ConcreteKey)
	return nil
}

// Get looks a resource up by concrete key.
func (m *Map) Get(concreteKey string) (Provided, bool) {
	p, ok := m.byKey[concreteKey]
	return p, ok
}

// Keys returns all concrete keys in creation order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.order...)
}

// All returns all provided resources in creation order.
func (m *Map) All() []Provided {
	out := make([]Provided, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.byKey[k])
	}
	return out
}

// Len returns the number of provided resources.
func (m *Map) Len() int {
	return len(m.order)
}

// Freeze makes the map read-only. Idempotent.
func (m *Map) Freeze() {
	m.frozen = true
}

// Frozen reports whether the map has been frozen.
func (m *Map) Frozen() bool {
	return m.frozen
}
