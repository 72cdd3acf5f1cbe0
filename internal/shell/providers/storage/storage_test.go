package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/requirement"
)

func declared(componentID string, index int, config map[string]any) requirement.Declared {
	return requirement.Declared{
		Requirement: requirement.New(Type, "shared", config),
		ComponentID: componentID,
		Index:       index,
	}
}

func group(members ...requirement.Declared) requirement.Group {
	return requirement.Group{CompositeKey: "storage:shared", Type: Type, Key: "shared", Members: members}
}

func TestProvider_PublicAccessMismatchConflicts(t *testing.T) {
	p := New(nil)

	_, err := p.MergeRequirements(group(
		declared("site", 0, map[string]any{"publicAccess": true}),
		declared("vault", 1, map[string]any{"publicAccess": false}),
	))
	assert.ErrorIs(t, err, merge.ErrConflict)
}

func TestProvider_SkuTakesMostDurableTier(t *testing.T) {
	p := New(nil)

	m, err := p.MergeRequirements(group(
		declared("a", 0, map[string]any{"sku": "standard-lrs"}),
		declared("b", 1, map[string]any{"sku": "standard-ragrs"}),
		declared("c", 2, map[string]any{"sku": "standard-grs"}),
	))
	require.NoError(t, err)
	assert.Equal(t, "standard-ragrs", m.Config["sku"])
}

func TestProvider_AllowedOriginsIntersect(t *testing.T) {
	p := New(nil)

	m, err := p.MergeRequirements(group(
		declared("a", 0, map[string]any{"allowedOrigins": []any{"https://app.example.com", "https://admin.example.com"}}),
		declared("b", 1, map[string]any{"allowedOrigins": []any{"https://app.example.com"}}),
	))
	require.NoError(t, err)
	assert.Equal(t, []any{"https://app.example.com"}, m.Config["allowedOrigins"])
	assert.Empty(t, m.Warnings)
}

func TestProvider_EmptyIntersectionWarns(t *testing.T) {
	p := New(nil)

	m, err := p.MergeRequirements(group(
		declared("a", 0, map[string]any{"allowedOrigins": []any{"https://a.example.com"}}),
		declared("b", 1, map[string]any{"allowedOrigins": []any{"https://b.example.com"}}),
	))
	require.NoError(t, err)
	assert.Equal(t, []any{}, m.Config["allowedOrigins"])
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "allowedOrigins", m.Warnings[0].Field)
}

func TestProvider_CapacitySplitsAtContainerLimit(t *testing.T) {
	p := New(nil)
	assert.Equal(t, capacity.Limit{MaxUnits: 200, MaxSplits: 8}, p.Capacity())

	// 250 declared containers split into accounts of 200 and 50.
	containers := make([]any, 250)
	for i := range containers {
		containers[i] = map[string]any{"name": fmt.Sprintf("c%03d", i)}
	}
	m, err := p.MergeRequirements(group(
		declared("bulk", 0, map[string]any{"containers": containers}),
	))
	require.NoError(t, err)

	buckets, err := capacity.Split(m, p.Capacity())
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "storage:shared", buckets[0].ConcreteKey)
	assert.Equal(t, "storage:shared-2", buckets[1].ConcreteKey)
	assert.Len(t, buckets[0].Units, 200)
	assert.Len(t, buckets[1].Units, 50)
}

func TestProvider_MaxContainersOverride(t *testing.T) {
	p := New(nil, WithMaxContainers(10))
	assert.Equal(t, 10, p.Capacity().MaxUnits)
}
