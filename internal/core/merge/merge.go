// Package merge collapses a requirement group into one resolved
// configuration under a per-field strategy spec.
//
// The engine is pure and deterministic, and its result is canonical: merging
// any permutation of the same members yields the same Merged value (aside
// from the documented priority tie-break, which follows declaration order).
// Union collections are therefore sorted by identity in the resolved config,
// while the original declaration order survives in the unit provenance that
// drives first-fit capacity filling.
package merge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/artpar/weld/internal/core/requirement"
)

// =============================================================================
// Strategy Spec
// =============================================================================

// Strategy selects how one configuration field merges across a group.
type Strategy string

const (
	// StrategyExact requires all declared values to agree; disagreement is
	// resolved by a strictly higher declaration priority (with a warning)
	// and conflicts on ties. Default for fields without a rule.
	StrategyExact Strategy = "exact"

	// StrategyUnion combines collection fields, deduplicated by an identity
	// field; entries sharing identity but differing elsewhere conflict.
	StrategyUnion Strategy = "union"

	// StrategyIntersection keeps only entries common to every declaring
	// member; an empty result from non-empty inputs is a warning.
	StrategyIntersection Strategy = "intersection"

	// StrategyMaximum takes the highest value of a totally-ordered scalar:
	// numeric fields compare numerically, string fields through Ranking.
	StrategyMaximum Strategy = "maximum"

	// StrategyPriority picks the value declared with the highest requirement
	// priority; ties break first-declared-wins and overrides are warnings.
	StrategyPriority Strategy = "priority"
)

// FieldRule configures the strategy for one configuration field.
type FieldRule struct {
	Strategy Strategy

	// IdentityField names the entry field that identifies a sub-resource in
	// a union collection (e.g. "name"). Empty means entries identify by
	// their whole value.
	IdentityField string

	// Ranking orders string values for StrategyMaximum, lowest first.
	Ranking []string
}

// Spec is a provider's merge strategy: per-field rules plus the decomposable
// unit collection the capacity enforcer counts (empty if none).
type Spec struct {
	UnitField string
	Fields    map[string]FieldRule
}

func (s Spec) rule(field string) FieldRule {
	if r, ok := s.Fields[field]; ok {
		if r.Strategy == "" {
			r.Strategy = StrategyExact
		}
		return r
	}
	return FieldRule{Strategy: StrategyExact}
}

// =============================================================================
// Merged Result
// =============================================================================

// Warning records a non-fatal observation made while merging.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Unit is the provenance of one entry of the unit collection: which
// components contributed it and where it was first declared. Units are
// ordered by first declaration, which is the order the capacity enforcer
// fills buckets in.
type Unit struct {
	Identity string   `json:"identity"`
	Entry    any      `json:"entry"`
	First    int      `json:"first"`
	Members  []string `json:"members"`
}

// Merged is the resolved result of one requirement group.
type Merged struct {
	Type         string         `json:"type"`
	Key          string         `json:"key"`
	CompositeKey string         `json:"composite_key"`
	Config       map[string]any `json:"config"`
	Priority     int            `json:"priority"`
	Sources      int            `json:"sources"`
	Members      []string       `json:"members"`
	Warnings     []Warning      `json:"warnings,omitempty"`
	UnitField    string         `json:"unit_field,omitempty"`
	Units        []Unit         `json:"units,omitempty"`
}

// =============================================================================
// Engine
// =============================================================================

// Merge resolves a requirement group under the given spec.
//
// Every field across all members is resolved independently; conflicts are
// accumulated (joined) rather than returned one at a time, so an author sees
// every irreconcilable field at once.
func Merge(spec Spec, g requirement.Group) (Merged, error) {
	if len(g.Members) == 0 {
		return Merged{}, ErrEmptyGroup
	}

	out := Merged{
		Type:         g.Type,
		Key:          g.Key,
		CompositeKey: g.CompositeKey,
		Config:       make(map[string]any),
		Priority:     g.MaxPriority(),
		Sources:      len(g.Members),
		Members:      g.ComponentIDs(),
		UnitField:    spec.UnitField,
	}

	var conflicts []error
	for _, field := range fieldOrder(g.Members) {
		values := gather(g.Members, field)
		rule := spec.rule(field)

		var (
			resolved any
			warnings []Warning
			units    []Unit
			err      error
		)

		switch rule.Strategy {
		case StrategyUnion:
			resolved, units, err = mergeUnion(g.CompositeKey, field, rule, values)
		case StrategyIntersection:
			resolved, warnings = mergeIntersection(field, values)
		case StrategyMaximum:
			resolved, err = mergeMaximum(g.CompositeKey, field, rule, values)
		case StrategyPriority:
			resolved, warnings = mergePriority(field, values)
		default:
			resolved, warnings, err = mergeExact(g.CompositeKey, field, values)
		}

		if err != nil {
			conflicts = append(conflicts, err)
			continue
		}

		out.Config[field] = resolved
		out.Warnings = append(out.Warnings, warnings...)
		if field == spec.UnitField {
			out.Units = units
		}
	}

	if len(conflicts) > 0 {
		return Merged{}, errors.Join(conflicts...)
	}
	return out, nil
}

// fieldOrder returns every config field across the members, in order of
// first appearance by declaration. Deterministic given member order.
func fieldOrder(members []requirement.Declared) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, m := range members {
		keys := make([]string, 0, len(m.Config))
		for k := range m.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	return fields
}

// fieldValue is one member's declaration of one field.
type fieldValue struct {
	Value       any
	Priority    int
	ComponentID string
	Index       int
}

// gather collects the field from every member that declares it, in
// declaration order. Members without the field do not participate.
func gather(members []requirement.Declared, field string) []fieldValue {
	var values []fieldValue
	for _, m := range members {
		v, ok := m.Config[field]
		if !ok {
			continue
		}
		values = append(values, fieldValue{
			Value:       v,
			Priority:    m.Priority,
			ComponentID: m.ComponentID,
			Index:       m.Index,
		})
	}
	return values
}

func componentsOf(values []fieldValue) []string {
	seen := make(map[string]bool, len(values))
	var ids []string
	for _, v := range values {
		if !seen[v.ComponentID] {
			seen[v.ComponentID] = true
			ids = append(ids, v.ComponentID)
		}
	}
	return ids
}

func fmtValue(v any) string {
	return fmt.Sprintf("%v", normalize(v))
}
