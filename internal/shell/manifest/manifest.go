package manifest

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/shell/providers"
)

// =============================================================================
// Manifest Types
// =============================================================================

// Manifest is the YAML document describing one composition: the scope it
// runs under, the providers to register, and the components to orchestrate.
type Manifest struct {
	Project     string            `yaml:"project"`
	Environment string            `yaml:"environment"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Providers   providers.Config  `yaml:"providers,omitempty"`

	// Compose names a compose file (relative to the manifest) whose
	// services are imported as additional custom components.
	Compose string `yaml:"compose,omitempty"`

	Components []ComponentEntry `yaml:"components"`
}

// ComponentEntry declares one component: its identifier, its catalog type,
// and the type-specific configuration.
type ComponentEntry struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config,omitempty"`
}

// Scope returns the deployment scope the manifest describes.
func (m *Manifest) Scope() domain.Scope {
	env := m.Environment
	if env == "" {
		env = "default"
	}
	return domain.Scope{
		Project:     m.Project,
		Environment: env,
		Tags:        m.Tags,
	}
}

// =============================================================================
// Loading
// =============================================================================

// Parse parses a manifest document.
func Parse(data []byte) (*Manifest, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrEmptyInput
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, NewError("", err.Error(), ErrInvalidYAML)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a manifest file. A compose file referenced by the
// manifest is resolved relative to the manifest's directory and its services
// are appended as custom components.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("", "cannot read manifest: "+err.Error(), err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if m.Compose != "" {
		composePath := m.Compose
		if !filepath.IsAbs(composePath) {
			composePath = filepath.Join(filepath.Dir(path), composePath)
		}
		content, err := os.ReadFile(composePath)
		if err != nil {
			return nil, NewError("compose", "cannot read compose file: "+err.Error(), err)
		}
		entries, err := ImportCompose(string(content))
		if err != nil {
			return nil, err
		}
		m.Components = append(m.Components, entries...)
		if err := m.validateComponents(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Validate checks the structural invariants of a manifest.
func (m *Manifest) Validate() error {
	if m.Project == "" {
		return NewError("project", "project name is required", ErrMissingProject)
	}
	if len(m.Components) == 0 && m.Compose == "" {
		return NewError("components", "at least one component is required", ErrNoComponents)
	}
	return m.validateComponents()
}

func (m *Manifest) validateComponents() error {
	seen := make(map[string]bool, len(m.Components))
	for i, entry := range m.Components {
		field := "components[" + entry.ID + "]"
		if entry.ID == "" {
			return NewError(field, "component id is required at index "+strconv.Itoa(i), ErrInvalidComponent)
		}
		if entry.Type == "" {
			return NewError(field, "component type is required", ErrInvalidComponent)
		}
		if seen[entry.ID] {
			return NewError(field, "component id declared twice", ErrDuplicateComponentID)
		}
		seen[entry.ID] = true
	}
	return nil
}
