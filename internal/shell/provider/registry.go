package provider

import (
	"errors"
	"fmt"
	"log/slog"
)

// =============================================================================
// Registry Errors
// =============================================================================

var (
	// ErrDuplicateType is returned when two providers claim one resource type.
	ErrDuplicateType = errors.New("provider already registered for resource type")

	// ErrNilProvider is returned when registering a nil provider.
	ErrNilProvider = errors.New("provider must not be nil")
)

// =============================================================================
// Registry
// =============================================================================

// Registry maps resource types to their providers. Registration happens at
// composition time, before orchestration starts; lookups afterwards are
// read-only, so no locking is needed.
type Registry struct {
	order  []string
	byType map[string]Provider
	logger *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byType: make(map[string]Provider),
		logger: logger.With("component", "provider-registry"),
	}
}

// Register adds a provider for its resource type.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return ErrNilProvider
	}
	resourceType := p.Type()
	if resourceType == "" {
		return fmt.Errorf("%w: empty resource type", ErrNilProvider)
	}
	if _, exists := r.byType[resourceType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, resourceType)
	}

	r.byType[resourceType] = p
	r.order = append(r.order, resourceType)
	r.logger.Debug("provider registered", "resource_type", resourceType)
	return nil
}

// For returns the provider registered for a resource type.
func (r *Registry) For(resourceType string) (Provider, bool) {
	p, ok := r.byType[resourceType]
	return p, ok
}

// Types returns the registered resource types in registration order.
func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}
