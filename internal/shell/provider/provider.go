// Package provider defines the contract a resource-type provider must
// satisfy to take part in orchestration, and the registry the backend
// resolves providers from. This is part of the Imperative Shell:
// ProvideResource is the single point in the system where external side
// effects (actual provisioning) are permitted.
package provider

import (
	"context"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/naming"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
)

// =============================================================================
// Creation Context
// =============================================================================

// CreateContext carries everything a provider may need while creating one
// concrete resource: the naming collaborator, the deployment scope and its
// tags, the owning backend's ID, and a read-only view of the resources
// created so far in this run.
type CreateContext struct {
	BackendID string
	Scope     domain.Scope
	Namer     naming.Formatter
	Tags      map[string]string
	Created   *resource.Map
}

// ResourceName formats the physical name of the index-th bucket of a
// resource type through the naming collaborator.
func (c CreateContext) ResourceName(resourceType string, index int) string {
	return c.Namer.ResourceName(resourceType, c.BackendID, index)
}

// =============================================================================
// Provider Contract
// =============================================================================

// Provider implements one resource type.
//
// MergeRequirements and ValidateMerged must be pure; MergeRequirements must
// additionally be associative and order-independent so that the merged
// result does not depend on declaration order (beyond the documented
// priority tie-break). Only ProvideResource may touch the outside world, and
// the backend guarantees it is never called while any group in the run still
// has an unresolved analysis error.
type Provider interface {
	// Type returns the resource type this provider serves ("storage", ...).
	Type() string

	// CanProvide reports whether the provider accepts the requirement.
	CanProvide(req requirement.Requirement) bool

	// MergeRequirements collapses a requirement group into one merged
	// requirement, or fails with a merge conflict.
	MergeRequirements(g requirement.Group) (merge.Merged, error)

	// ValidateMerged checks the merged configuration before any creation
	// call is issued.
	ValidateMerged(m merge.Merged) validation.Result

	// Capacity returns the resource type's declared capacity profile.
	Capacity() capacity.Limit

	// ProvideResource creates the concrete resource for one bucket. May
	// perform external side effects.
	ProvideResource(ctx context.Context, bucket capacity.Bucket, createCtx CreateContext) (resource.Provided, error)
}
