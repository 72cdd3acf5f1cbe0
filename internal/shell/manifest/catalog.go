package manifest

import (
	"sort"

	"github.com/artpar/weld/internal/core/component"
)

// =============================================================================
// Catalog
// =============================================================================

// Builder constructs the component factory for one manifest entry. The
// component id is bound here so factories can derive defaults from it.
type Builder func(id string) component.Factory

// Catalog maps manifest component types to their builders.
type Catalog struct {
	byType map[string]Builder
}

// NewCatalog creates a catalog holding the built-in component types.
func NewCatalog() *Catalog {
	c := &Catalog{byType: make(map[string]Builder)}
	c.byType["webapp"] = newWebapp
	c.byType["worker"] = newWorker
	c.byType["site"] = newSite
	c.byType["custom"] = newCustom
	return c
}

// Register adds a component type to the catalog. Existing types can be
// overridden, which is how embedders swap in their own implementations.
func (c *Catalog) Register(componentType string, b Builder) {
	c.byType[componentType] = b
}

// Types returns the registered component types, sorted.
func (c *Catalog) Types() []string {
	types := make([]string, 0, len(c.byType))
	for t := range c.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Definition turns one manifest entry into an orchestratable definition.
func (c *Catalog) Definition(entry ComponentEntry) (component.Definition, error) {
	b, ok := c.byType[entry.Type]
	if !ok {
		return component.Definition{}, NewError(
			"components["+entry.ID+"]",
			"unknown component type: "+entry.Type,
			ErrUnknownComponentType,
		)
	}
	return component.Define(entry.ID, entry.Type, entry.Config, b(entry.ID)), nil
}

// Definitions turns every component entry of a manifest into a definition.
func (c *Catalog) Definitions(m *Manifest) ([]component.Definition, error) {
	defs := make([]component.Definition, 0, len(m.Components))
	for _, entry := range m.Components {
		def, err := c.Definition(entry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
