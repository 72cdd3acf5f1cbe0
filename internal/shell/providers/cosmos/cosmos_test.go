package cosmos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/naming"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/shell/provider"
)

func group(members ...requirement.Declared) requirement.Group {
	g := requirement.Group{CompositeKey: "cosmos:shared", Type: Type, Key: "shared"}
	g.Members = members
	return g
}

func declared(componentID string, index int, config map[string]any) requirement.Declared {
	return requirement.Declared{
		Requirement: requirement.New(Type, "shared", config),
		ComponentID: componentID,
		Index:       index,
	}
}

func TestProvider_MergeTakesStrongestConsistency(t *testing.T) {
	p := New(nil)

	m, err := p.MergeRequirements(group(
		declared("a", 0, map[string]any{
			"containers":  []any{map[string]any{"name": "User"}},
			"consistency": "eventual",
			"throughput":  400,
		}),
		declared("b", 1, map[string]any{
			"containers":  []any{map[string]any{"name": "Order"}},
			"consistency": "session",
			"throughput":  1000,
		}),
	))
	require.NoError(t, err)

	assert.Equal(t, "session", m.Config["consistency"])
	assert.Equal(t, 1000, m.Config["throughput"])
	assert.Len(t, m.Units, 2)
}

func TestProvider_UnknownConsistencyConflicts(t *testing.T) {
	p := New(nil)

	_, err := p.MergeRequirements(group(
		declared("a", 0, map[string]any{"consistency": "linearizable"}),
		declared("b", 1, map[string]any{"consistency": "session"}),
	))
	assert.ErrorIs(t, err, merge.ErrConflict)
}

func TestProvider_ValidateMerged(t *testing.T) {
	p := New(nil)

	tests := []struct {
		name   string
		config map[string]any
		ok     bool
	}{
		{"no throughput", map[string]any{}, true},
		{"positive throughput", map[string]any{"throughput": 400}, true},
		{"zero throughput", map[string]any{"throughput": 0}, false},
		{"non-numeric throughput", map[string]any{"throughput": "lots"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.ValidateMerged(merge.Merged{Config: tt.config})
			assert.Equal(t, tt.ok, res.Ok())
		})
	}
}

func TestProvider_CapacityLimits(t *testing.T) {
	p := New(nil)
	assert.Equal(t, capacity.Limit{MaxUnits: 25, MaxSplits: 4}, p.Capacity())
}

func TestProvider_ProvideResourceEmitsDescriptor(t *testing.T) {
	p := New(nil)

	bucket := capacity.Bucket{
		ConcreteKey:  "cosmos:shared",
		CompositeKey: "cosmos:shared",
		Index:        1,
		Config:       map[string]any{"throughput": 1000, "consistency": "session"},
		Units: []merge.Unit{
			{Identity: "User"},
			{Identity: "Order"},
		},
		Members: []string{"a", "b"},
	}
	createCtx := provider.CreateContext{BackendID: "run1", Namer: naming.Default}

	got, err := p.ProvideResource(context.Background(), bucket, createCtx)
	require.NoError(t, err)

	assert.Equal(t, "weld_run1_cosmos", got.Name)
	assert.Equal(t, "https://weld_run1_cosmos.documents.example.net:443/", got.Handle["endpoint"])
	assert.Equal(t, []string{"User", "Order"}, got.Handle["containers"])
	assert.Equal(t, 1000, got.Handle["throughput"])

	// Same inputs, same descriptor.
	again, err := p.ProvideResource(context.Background(), bucket, createCtx)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}
