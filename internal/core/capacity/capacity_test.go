package capacity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/merge"
)

// mergedContainers builds a merged storage requirement with n containers
// declared one per pseudo-component, in declaration order.
func mergedContainers(compositeKey string, n int) merge.Merged {
	units := make([]merge.Unit, 0, n)
	entries := make([]any, 0, n)
	members := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("container-%03d", i)
		owner := fmt.Sprintf("component-%03d", i)
		entry := map[string]any{"name": name}
		units = append(units, merge.Unit{Identity: name, Entry: entry, First: i, Members: []string{owner}})
		entries = append(entries, entry)
		members = append(members, owner)
	}
	return merge.Merged{
		Type:         "storage",
		Key:          "assets",
		CompositeKey: compositeKey,
		Config:       map[string]any{"containers": entries, "sku": "standard"},
		Sources:      n,
		Members:      members,
		UnitField:    "containers",
		Units:        units,
	}
}

// =============================================================================
// Concrete Key Tests
// =============================================================================

func TestConcreteKey(t *testing.T) {
	assert.Equal(t, "storage:assets", ConcreteKey("storage:assets", 1))
	assert.Equal(t, "storage:assets-2", ConcreteKey("storage:assets", 2))
	assert.Equal(t, "storage:assets-3", ConcreteKey("storage:assets", 3))
}

// =============================================================================
// Split Tests
// =============================================================================

func TestSplit_UnderLimitSingleBucket(t *testing.T) {
	m := mergedContainers("storage:assets", 3)

	buckets, err := Split(m, Limit{MaxUnits: 200, MaxSplits: 8})
	require.NoError(t, err)

	require.Len(t, buckets, 1)
	assert.Equal(t, "storage:assets", buckets[0].ConcreteKey)
	assert.Len(t, buckets[0].Units, 3)
	assert.Len(t, buckets[0].Members, 3)
}

func TestSplit_ExactlyAtLimitSingleBucket(t *testing.T) {
	m := mergedContainers("storage:assets", 200)

	buckets, err := Split(m, Limit{MaxUnits: 200, MaxSplits: 8})
	require.NoError(t, err)

	require.Len(t, buckets, 1)
	assert.Len(t, buckets[0].Units, 200)
}

func TestSplit_OneOverLimitOpensSecondBucket(t *testing.T) {
	m := mergedContainers("storage:assets", 201)

	buckets, err := Split(m, Limit{MaxUnits: 200, MaxSplits: 8})
	require.NoError(t, err)

	require.Len(t, buckets, 2)
	assert.Len(t, buckets[0].Units, 200)
	assert.Len(t, buckets[1].Units, 1)
	assert.Equal(t, "storage:assets-2", buckets[1].ConcreteKey)
}

func TestSplit_250ContainersLimit200(t *testing.T) {
	m := mergedContainers("storage:assets", 250)

	buckets, err := Split(m, Limit{MaxUnits: 200, MaxSplits: 8})
	require.NoError(t, err)

	require.Len(t, buckets, 2)
	assert.Equal(t, "storage:assets", buckets[0].ConcreteKey)
	assert.Equal(t, "storage:assets-2", buckets[1].ConcreteKey)
	assert.Len(t, buckets[0].Units, 200)
	assert.Len(t, buckets[1].Units, 50)

	// First-fit by declaration order: the first 200 declarations fill the
	// first bucket.
	assert.Equal(t, "container-000", buckets[0].Units[0].Identity)
	assert.Equal(t, "container-199", buckets[0].Units[199].Identity)
	assert.Equal(t, "container-200", buckets[1].Units[0].Identity)

	// Each bucket carries only its own slice of the collection.
	first := buckets[0].Config["containers"].([]any)
	second := buckets[1].Config["containers"].([]any)
	assert.Len(t, first, 200)
	assert.Len(t, second, 50)

	// Non-collection fields are copied into every bucket.
	assert.Equal(t, "standard", buckets[0].Config["sku"])
	assert.Equal(t, "standard", buckets[1].Config["sku"])
}

func TestSplit_Deterministic(t *testing.T) {
	m := mergedContainers("storage:assets", 431)

	a, err := Split(m, Limit{MaxUnits: 100, MaxSplits: 8})
	require.NoError(t, err)
	b, err := Split(m, Limit{MaxUnits: 100, MaxSplits: 8})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSplit_MaxSplitsExceeded(t *testing.T) {
	m := mergedContainers("storage:assets", 250)

	_, err := Split(m, Limit{MaxUnits: 100, MaxSplits: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExceeded)

	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "storage:assets", capErr.CompositeKey)
	assert.Equal(t, 250, capErr.Demand)
	assert.Equal(t, 3, capErr.Buckets)
}

func TestSplit_UncountedLimitSingleBucket(t *testing.T) {
	m := mergedContainers("storage:assets", 250)

	buckets, err := Split(m, Limit{MaxUnits: 0})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Len(t, buckets[0].Units, 250)
}

func TestSplit_NoUnitsFallsBackToMembers(t *testing.T) {
	m := merge.Merged{
		Type:         "functions",
		Key:          "api",
		CompositeKey: "functions:api",
		Config:       map[string]any{"runtime": "node20"},
		Sources:      3,
		Members:      []string{"a", "b", "c"},
	}

	buckets, err := Split(m, Limit{MaxUnits: 2, MaxSplits: 4})
	require.NoError(t, err)

	require.Len(t, buckets, 2)
	assert.Equal(t, []string{"a", "b"}, buckets[0].Members)
	assert.Equal(t, []string{"c"}, buckets[1].Members)
	// Member-mode buckets keep the full merged config.
	assert.Equal(t, "node20", buckets[0].Config["runtime"])
	assert.Equal(t, "node20", buckets[1].Config["runtime"])
}

func TestSplit_BucketMemberAttribution(t *testing.T) {
	// Two units owned by one component, one unit shared by two.
	m := merge.Merged{
		CompositeKey: "cosmos:db",
		Config:       map[string]any{},
		UnitField:    "containers",
		Members:      []string{"a", "b"},
		Units: []merge.Unit{
			{Identity: "x", Entry: map[string]any{"name": "x"}, First: 0, Members: []string{"a"}},
			{Identity: "y", Entry: map[string]any{"name": "y"}, First: 1, Members: []string{"a", "b"}},
			{Identity: "z", Entry: map[string]any{"name": "z"}, First: 2, Members: []string{"b"}},
		},
	}

	buckets, err := Split(m, Limit{MaxUnits: 2, MaxSplits: 4})
	require.NoError(t, err)

	require.Len(t, buckets, 2)
	assert.Equal(t, []string{"a", "b"}, buckets[0].Members)
	assert.True(t, buckets[0].Shared())
	assert.Equal(t, []string{"b"}, buckets[1].Members)
	assert.False(t, buckets[1].Shared())
}
