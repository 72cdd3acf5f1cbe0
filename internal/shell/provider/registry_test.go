package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
)

type stubProvider struct {
	resourceType string
}

func (s stubProvider) Type() string                                 { return s.resourceType }
func (s stubProvider) CanProvide(requirement.Requirement) bool      { return true }
func (s stubProvider) MergeRequirements(g requirement.Group) (merge.Merged, error) {
	return merge.Merge(merge.Spec{}, g)
}
func (s stubProvider) ValidateMerged(merge.Merged) validation.Result { return validation.OK() }
func (s stubProvider) Capacity() capacity.Limit                      { return capacity.Limit{} }
func (s stubProvider) ProvideResource(context.Context, capacity.Bucket, CreateContext) (resource.Provided, error) {
	return resource.Provided{}, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(stubProvider{resourceType: "storage"}))
	require.NoError(t, r.Register(stubProvider{resourceType: "cosmos"}))

	p, ok := r.For("storage")
	require.True(t, ok)
	assert.Equal(t, "storage", p.Type())

	_, ok = r.For("functions")
	assert.False(t, ok)

	assert.Equal(t, []string{"storage", "cosmos"}, r.Types())
}

func TestRegistry_DuplicateTypeRejected(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(stubProvider{resourceType: "storage"}))
	err := r.Register(stubProvider{resourceType: "storage"})
	assert.ErrorIs(t, err, ErrDuplicateType)
}

func TestRegistry_NilProviderRejected(t *testing.T) {
	r := NewRegistry(nil)
	assert.ErrorIs(t, r.Register(nil), ErrNilProvider)
}
