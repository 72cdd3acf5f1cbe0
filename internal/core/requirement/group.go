package requirement

// =============================================================================
// Requirement Group
// =============================================================================

// Group aggregates every declaration that shares one composite key. Members
// keep their global declaration order.
type Group struct {
	CompositeKey string
	Type         string
	Key          string
	Members      []Declared
}

// ComponentIDs returns the contributing component IDs, deduplicated, in
// declaration order.
func (g Group) ComponentIDs() []string {
	seen := make(map[string]bool, len(g.Members))
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if seen[m.ComponentID] {
			continue
		}
		seen[m.ComponentID] = true
		ids = append(ids, m.ComponentID)
	}
	return ids
}

// MaxPriority returns the highest member priority, or DefaultPriority for an
// empty group.
func (g Group) MaxPriority() int {
	max := DefaultPriority
	for i, m := range g.Members {
		if i == 0 || m.Priority > max {
			max = m.Priority
		}
	}
	return max
}

// =============================================================================
// Grouper
// =============================================================================

// GroupBy partitions declarations into groups by composite key.
//
// The partition is deterministic: groups appear in order of each key's first
// declaration, and members keep their declaration order within the group.
// Later stages (first-fit capacity filling, priority tie-breaks) rely on
// this ordering.
func GroupBy(declared []Declared) []Group {
	index := make(map[string]int, len(declared))
	groups := make([]Group, 0, len(declared))

	for _, d := range declared {
		key := d.CompositeKey()
		at, exists := index[key]
		if !exists {
			at = len(groups)
			index[key] = at
			groups = append(groups, Group{
				CompositeKey: key,
				Type:         d.Type,
				Key:          d.Key,
			})
		}
		groups[at].Members = append(groups[at].Members, d)
	}

	return groups
}
