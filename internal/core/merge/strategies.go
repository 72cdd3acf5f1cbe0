package merge

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// =============================================================================
// Union
// =============================================================================

// mergeUnion combines collection values, deduplicating entries by identity.
// Entries sharing an identity must agree on every other field; the first
// disagreeing field conflicts. Returned units keep declaration order, the
// resolved collection is sorted by identity so the merged config is
// canonical under member permutation.
func mergeUnion(compositeKey, field string, rule FieldRule, values []fieldValue) (any, []Unit, error) {
	var (
		units     []Unit
		byID      = make(map[string]int)
		conflicts []error
	)

	for _, v := range values {
		entries, ok := asSlice(v.Value)
		if !ok {
			conflicts = append(conflicts, &ConflictError{
				CompositeKey: compositeKey,
				Field:        field,
				Components:   componentsOf(values),
				Values:       []any{v.Value},
			})
			continue
		}

		for _, entry := range entries {
			id := identityOf(entry, rule.IdentityField)
			at, exists := byID[id]
			if !exists {
				byID[id] = len(units)
				units = append(units, Unit{
					Identity: id,
					Entry:    entry,
					First:    v.Index,
					Members:  []string{v.ComponentID},
				})
				continue
			}

			unit := &units[at]
			if !equalValue(unit.Entry, entry) {
				sub, oldVal, newVal := diffField(unit.Entry, entry)
				if sub == "" {
					sub = field
				}
				involved := append([]string(nil), unit.Members...)
				conflicts = append(conflicts, &ConflictError{
					CompositeKey: compositeKey,
					Field:        sub,
					Identity:     id,
					Components:   appendMissing(involved, v.ComponentID),
					Values:       []any{oldVal, newVal},
				})
				continue
			}
			unit.Members = appendMissing(unit.Members, v.ComponentID)
		}
	}

	if len(conflicts) > 0 {
		return nil, nil, errors.Join(conflicts...)
	}

	// Canonical collection: sorted by identity.
	sorted := make([]Unit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Identity < sorted[j].Identity })

	resolved := make([]any, len(sorted))
	for i, u := range sorted {
		resolved[i] = u.Entry
	}
	return resolved, units, nil
}

// =============================================================================
// Intersection
// =============================================================================

// mergeIntersection keeps only the entries every declaring member listed.
// An empty result from non-empty inputs is a warning, not an error.
func mergeIntersection(field string, values []fieldValue) (any, []Warning) {
	counts := make(map[string]int)
	entryFor := make(map[string]any)
	order := make([]string, 0)
	nonEmpty := false

	for _, v := range values {
		entries, ok := asSlice(v.Value)
		if !ok {
			entries = []any{v.Value}
		}
		if len(entries) > 0 {
			nonEmpty = true
		}

		seen := make(map[string]bool, len(entries))
		for _, entry := range entries {
			key := fmtValue(entry)
			if seen[key] {
				continue
			}
			seen[key] = true
			if counts[key] == 0 {
				entryFor[key] = entry
				order = append(order, key)
			}
			counts[key]++
		}
	}

	resolved := make([]any, 0)
	sort.Strings(order)
	for _, key := range order {
		if counts[key] == len(values) {
			resolved = append(resolved, entryFor[key])
		}
	}

	var warnings []Warning
	if len(resolved) == 0 && nonEmpty {
		warnings = append(warnings, Warning{
			Field:   field,
			Message: "intersection is empty: no entry is common to all declaring components",
		})
	}
	return resolved, warnings
}

// =============================================================================
// Maximum
// =============================================================================

// mergeMaximum resolves a totally-ordered scalar to its highest value.
// Numbers compare numerically; strings compare through the rule's ranking.
// Anything else is not totally ordered and conflicts.
func mergeMaximum(compositeKey, field string, rule FieldRule, values []fieldValue) (any, error) {
	conflict := func() error {
		vals := make([]any, 0, len(values))
		for _, v := range values {
			vals = append(vals, v.Value)
		}
		return &ConflictError{
			CompositeKey: compositeKey,
			Field:        field,
			Components:   componentsOf(values),
			Values:       vals,
		}
	}

	if allNumeric(values) {
		best := values[0].Value
		bestN := asFloat(values[0].Value)
		for _, v := range values[1:] {
			if n := asFloat(v.Value); n > bestN {
				best, bestN = v.Value, n
			}
		}
		return best, nil
	}

	if len(rule.Ranking) > 0 {
		rank := make(map[string]int, len(rule.Ranking))
		for i, s := range rule.Ranking {
			rank[s] = i
		}

		bestRank := -1
		var best any
		for _, v := range values {
			s, ok := v.Value.(string)
			if !ok {
				return nil, conflict()
			}
			r, known := rank[s]
			if !known {
				return nil, conflict()
			}
			if r > bestRank {
				bestRank, best = r, v.Value
			}
		}
		return best, nil
	}

	return nil, conflict()
}

// =============================================================================
// Priority
// =============================================================================

// mergePriority picks the value declared with the highest requirement
// priority; ties break first-declared-wins. Overridden values that differ
// from the winner are recorded as warnings.
func mergePriority(field string, values []fieldValue) (any, []Warning) {
	winner := values[0]
	for _, v := range values[1:] {
		if v.Priority > winner.Priority {
			winner = v
		}
	}

	var warnings []Warning
	for _, v := range values {
		if v.ComponentID == winner.ComponentID && v.Index == winner.Index {
			continue
		}
		if !equalValue(v.Value, winner.Value) {
			warnings = append(warnings, Warning{
				Field: field,
				Message: fmt.Sprintf("value %v from component %q overridden by component %q (priority %d)",
					v.Value, v.ComponentID, winner.ComponentID, winner.Priority),
			})
		}
	}
	return winner.Value, warnings
}

// =============================================================================
// Exact
// =============================================================================

// mergeExact requires agreement. Disagreement resolves to the strictly
// highest declaration priority (with warnings for the losers); a tie at the
// top is a conflict naming every component involved.
func mergeExact(compositeKey, field string, values []fieldValue) (any, []Warning, error) {
	agreed := true
	for _, v := range values[1:] {
		if !equalValue(values[0].Value, v.Value) {
			agreed = false
			break
		}
	}
	if agreed {
		return values[0].Value, nil, nil
	}

	top := values[0].Priority
	for _, v := range values[1:] {
		if v.Priority > top {
			top = v.Priority
		}
	}

	var winners []fieldValue
	for _, v := range values {
		if v.Priority == top {
			winners = append(winners, v)
		}
	}

	for _, w := range winners[1:] {
		if !equalValue(winners[0].Value, w.Value) {
			var vals []any
			var comps []fieldValue
			for _, v := range winners {
				vals = append(vals, v.Value)
				comps = append(comps, v)
			}
			return nil, nil, &ConflictError{
				CompositeKey: compositeKey,
				Field:        field,
				Components:   componentsOf(comps),
				Values:       vals,
			}
		}
	}

	resolved := winners[0]
	var warnings []Warning
	for _, v := range values {
		if v.Priority == top {
			continue
		}
		if !equalValue(v.Value, resolved.Value) {
			warnings = append(warnings, Warning{
				Field: field,
				Message: fmt.Sprintf("value %v from component %q overridden by higher-priority component %q",
					v.Value, v.ComponentID, resolved.ComponentID),
			})
		}
	}
	return resolved.Value, warnings, nil
}

// =============================================================================
// Value Helpers
// =============================================================================

// normalize maps numeric kinds to float64 and containers to []any /
// map[string]any, recursively, so values that decode differently (YAML ints
// vs JSON floats) compare equal.
func normalize(v any) any {
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprintf("%v", iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

func equalValue(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func asSlice(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func allNumeric(values []fieldValue) bool {
	for _, v := range values {
		switch reflect.ValueOf(v.Value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return false
		}
	}
	return len(values) > 0
}

func asFloat(v any) float64 {
	f, _ := normalize(v).(float64)
	return f
}

// identityOf derives the dedup key of a union entry: the identity field of a
// map entry, or the whole value for scalar entries.
func identityOf(entry any, identityField string) string {
	if identityField != "" {
		if m, ok := normalize(entry).(map[string]any); ok {
			if id, exists := m[identityField]; exists {
				return fmt.Sprintf("%v", id)
			}
		}
	}
	return fmtValue(entry)
}

// diffField finds the first field (sorted) on which two map entries
// disagree. Non-map entries report no field name.
func diffField(a, b any) (string, any, any) {
	am, aok := normalize(a).(map[string]any)
	bm, bok := normalize(b).(map[string]any)
	if !aok || !bok {
		return "", a, b
	}

	keys := make(map[string]bool, len(am)+len(bm))
	for k := range am {
		keys[k] = true
	}
	for k := range bm {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		av, aHas := am[k]
		bv, bHas := bm[k]
		if !aHas || !bHas || !reflect.DeepEqual(av, bv) {
			return k, av, bv
		}
	}
	return "", a, b
}

func appendMissing(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
