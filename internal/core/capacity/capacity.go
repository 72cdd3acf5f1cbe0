// Package capacity enforces per-resource-type platform limits by splitting a
// merged requirement into concrete resource buckets.
//
// The split is a deterministic first-fit bin-fill by original declaration
// order, not a size-optimizing bin-pack: reproducibility of bucket keys and
// component-to-bucket assignment is worth more than bucket-count optimality.
// Pure functions only, per ADR-002: Values as Boundaries.
package capacity

import (
	"errors"
	"fmt"

	"github.com/artpar/weld/internal/core/merge"
)

// =============================================================================
// Capacity Errors
// =============================================================================

// ErrExceeded marks demand that cannot fit within limit × max-splits.
var ErrExceeded = errors.New("capacity exceeded")

// Error reports a demand that would need more buckets than the resource type
// allows.
type Error struct {
	CompositeKey string
	Demand       int
	MaxUnits     int
	MaxSplits    int
	Buckets      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("capacity exceeded on %q: %d units need %d buckets of %d, limit is %d splits",
		e.CompositeKey, e.Demand, e.Buckets, e.MaxUnits, e.MaxSplits)
}

func (e *Error) Unwrap() error {
	return ErrExceeded
}

// =============================================================================
// Limit
// =============================================================================

// Limit is a resource type's declared capacity profile. MaxUnits bounds the
// countable sub-resources per concrete instance (when the merge spec names a
// unit field) or the contributing components per instance (when it does
// not). MaxUnits <= 0 means uncounted: everything lands in one bucket.
// MaxSplits bounds the resulting bucket count; <= 0 means unbounded.
type Limit struct {
	MaxUnits  int
	MaxSplits int
}

// =============================================================================
// Bucket
// =============================================================================

// Bucket is one concrete resource instance carved from a merged requirement.
type Bucket struct {
	ConcreteKey  string         `json:"concrete_key"`
	CompositeKey string         `json:"composite_key"`
	Index        int            `json:"index"`
	Config       map[string]any `json:"config"`
	Units        []merge.Unit   `json:"units,omitempty"`
	Members      []string       `json:"members"`
}

// Shared reports whether the bucket spans more than one component. A bucket
// with exactly one component's contribution behaves like a dedicated
// resource.
func (b Bucket) Shared() bool {
	return len(b.Members) > 1
}

// ConcreteKey builds the key of the index-th bucket (1-based) of a composite
// key. The first bucket keeps the composite key; overflow buckets get a
// numeric suffix: "storage:assets", "storage:assets-2", "storage:assets-3".
func ConcreteKey(compositeKey string, index int) string {
	if index <= 1 {
		return compositeKey
	}
	return fmt.Sprintf("%s-%d", compositeKey, index)
}

// =============================================================================
// Split
// =============================================================================

// Split partitions a merged requirement into buckets that each respect the
// limit.
//
// When the merge produced unit provenance, the unit list is walked in
// original declaration order, filling the current bucket until the next unit
// would exceed MaxUnits, then opening a new one; each bucket's config carries
// only its own slice of the unit collection. Without units the contributing
// component list is walked the same way and every bucket carries the full
// merged config.
//
// Post-condition: no bucket exceeds MaxUnits. Exceeding MaxSplits buckets is
// fatal.
func Split(m merge.Merged, lim Limit) ([]Bucket, error) {
	if lim.MaxUnits <= 0 {
		return []Bucket{wholeBucket(m)}, nil
	}

	if m.UnitField != "" {
		return splitUnits(m, lim)
	}
	return splitMembers(m, lim)
}

func wholeBucket(m merge.Merged) Bucket {
	return Bucket{
		ConcreteKey:  ConcreteKey(m.CompositeKey, 1),
		CompositeKey: m.CompositeKey,
		Index:        1,
		Config:       cloneConfig(m.Config),
		Units:        m.Units,
		Members:      m.Members,
	}
}

func splitUnits(m merge.Merged, lim Limit) ([]Bucket, error) {
	if len(m.Units) == 0 {
		return []Bucket{wholeBucket(m)}, nil
	}

	bucketCount := (len(m.Units) + lim.MaxUnits - 1) / lim.MaxUnits
	if lim.MaxSplits > 0 && bucketCount > lim.MaxSplits {
		return nil, &Error{
			CompositeKey: m.CompositeKey,
			Demand:       len(m.Units),
			MaxUnits:     lim.MaxUnits,
			MaxSplits:    lim.MaxSplits,
			Buckets:      bucketCount,
		}
	}

	buckets := make([]Bucket, 0, bucketCount)
	for i := 0; i < bucketCount; i++ {
		lo := i * lim.MaxUnits
		hi := min(lo+lim.MaxUnits, len(m.Units))
		units := m.Units[lo:hi]

		entries := make([]any, len(units))
		members := make([]string, 0, len(units))
		seen := make(map[string]bool)
		for j, u := range units {
			entries[j] = u.Entry
			for _, id := range u.Members {
				if !seen[id] {
					seen[id] = true
					members = append(members, id)
				}
			}
		}

		config := cloneConfig(m.Config)
		config[m.UnitField] = entries

		buckets = append(buckets, Bucket{
			ConcreteKey:  ConcreteKey(m.CompositeKey, i+1),
			CompositeKey: m.CompositeKey,
			Index:        i + 1,
			Config:       config,
			Units:        units,
			Members:      members,
		})
	}
	return buckets, nil
}

func splitMembers(m merge.Merged, lim Limit) ([]Bucket, error) {
	if len(m.Members) == 0 {
		return []Bucket{wholeBucket(m)}, nil
	}

	bucketCount := (len(m.Members) + lim.MaxUnits - 1) / lim.MaxUnits
	if lim.MaxSplits > 0 && bucketCount > lim.MaxSplits {
		return nil, &Error{
			CompositeKey: m.CompositeKey,
			Demand:       len(m.Members),
			MaxUnits:     lim.MaxUnits,
			MaxSplits:    lim.MaxSplits,
			Buckets:      bucketCount,
		}
	}

	buckets := make([]Bucket, 0, bucketCount)
	for i := 0; i < bucketCount; i++ {
		lo := i * lim.MaxUnits
		hi := min(lo+lim.MaxUnits, len(m.Members))

		buckets = append(buckets, Bucket{
			ConcreteKey:  ConcreteKey(m.CompositeKey, i+1),
			CompositeKey: m.CompositeKey,
			Index:        i + 1,
			Config:       cloneConfig(m.Config),
			Members:      m.Members[lo:hi],
		})
	}
	return buckets, nil
}

func cloneConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}
