package resource

import "fmt"

// =============================================================================
// Scoped View
// =============================================================================

// ScopedView resolves one component's declared (resource type, requirement
// key) pairs to the specific buckets they were assigned to. Each composite
// key binds to the bucket holding the component's first-declared
// contribution; individual sub-resources that landed in overflow buckets
// stay reachable through Unit.
//
// Views are assembled by the backend before the map freezes and are
// read-only afterwards.
type ScopedView struct {
	componentID string
	resources   *Map
	byComposite map[string]string
	byUnit      map[string]string
	keys        []string
}

// NewScopedView creates an empty view over the given map for one component.
func NewScopedView(componentID string, resources *Map) *ScopedView {
	return &ScopedView{
		componentID: componentID,
		resources:   resources,
		byComposite: make(map[string]string),
		byUnit:      make(map[string]string),
	}
}

// ComponentID returns the component the view belongs to.
func (v *ScopedView) ComponentID() string {
	return v.componentID
}

// Bind assigns a composite key to a concrete bucket. The first binding wins:
// a component whose contributions span several buckets resolves to the one
// holding its first declaration.
func (v *ScopedView) Bind(compositeKey, concreteKey string) error {
	if v.resources.Frozen() {
		panic("resource map is frozen")
	}
	if _, exists := v.resources.Get(concreteKey); !exists {
		return fmt.Errorf("%w: %s", ErrUnknownKey, concreteKey)
	}
	if _, bound := v.byComposite[compositeKey]; bound {
		return nil
	}
	v.byComposite[compositeKey] = concreteKey
	v.keys = append(v.keys, compositeKey)
	return nil
}

// BindUnit assigns one sub-resource of a composite key to the concrete
// bucket it landed in.
func (v *ScopedView) BindUnit(compositeKey, identity, concreteKey string) error {
	if v.resources.Frozen() {
		panic("resource map is frozen")
	}
	if _, exists := v.resources.Get(concreteKey); !exists {
		return fmt.Errorf("%w: %s", ErrUnknownKey, concreteKey)
	}
	v.byUnit[unitKey(compositeKey, identity)] = concreteKey
	return nil
}

// Resolve returns the provided resource for a declared (type, key) pair.
func (v *ScopedView) Resolve(resourceType, key string) (Provided, bool) {
	return v.Composite(resourceType + ":" + key)
}

// Composite returns the provided resource for a composite key.
func (v *ScopedView) Composite(compositeKey string) (Provided, bool) {
	concrete, ok := v.byComposite[compositeKey]
	if !ok {
		return Provided{}, false
	}
	return v.resources.Get(concrete)
}

// Unit returns the provided resource holding one specific sub-resource. It
// falls back to the composite binding when the identity was never bound
// separately.
func (v *ScopedView) Unit(compositeKey, identity string) (Provided, bool) {
	if concrete, ok := v.byUnit[unitKey(compositeKey, identity)]; ok {
		return v.resources.Get(concrete)
	}
	return v.Composite(compositeKey)
}

// Keys returns the bound composite keys in binding order.
func (v *ScopedView) Keys() []string {
	return append([]string(nil), v.keys...)
}

func unitKey(compositeKey, identity string) string {
	return compositeKey + "\x00" + identity
}
