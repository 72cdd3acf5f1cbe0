package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
project: acme
environment: prod
tags:
  team: platform
providers:
  enabled: [cosmos, storage, functions]
  storage:
    max_containers: 100
components:
  - id: users-api
    type: webapp
    config:
      database: users
      runtime: node
  - id: landing
    type: site
    config:
      container: landing
`

func TestParse_ValidManifest(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "acme", m.Project)
	assert.Equal(t, "prod", m.Environment)
	assert.Equal(t, "platform", m.Tags["team"])
	assert.Equal(t, []string{"cosmos", "storage", "functions"}, m.Providers.Enabled)
	assert.Equal(t, 100, m.Providers.Storage.MaxContainers)
	require.Len(t, m.Components, 2)
	assert.Equal(t, "users-api", m.Components[0].ID)
	assert.Equal(t, "webapp", m.Components[0].Type)
	assert.Equal(t, "users", m.Components[0].Config["database"])
}

func TestParse_Scope(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	scope := m.Scope()
	assert.Equal(t, "acme", scope.Project)
	assert.Equal(t, "prod", scope.Environment)
	assert.Equal(t, "platform", scope.Tags["team"])
}

func TestParse_DefaultEnvironment(t *testing.T) {
	m, err := Parse([]byte("project: acme\ncomponents:\n  - {id: a, type: site}\n"))
	require.NoError(t, err)
	assert.Equal(t, "default", m.Scope().Environment)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("project: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_MissingProject(t *testing.T) {
	_, err := Parse([]byte("components:\n  - {id: a, type: site}\n"))
	assert.ErrorIs(t, err, ErrMissingProject)
}

func TestParse_NoComponents(t *testing.T) {
	_, err := Parse([]byte("project: acme\n"))
	assert.ErrorIs(t, err, ErrNoComponents)
}

func TestParse_DuplicateComponentID(t *testing.T) {
	doc := `
project: acme
components:
  - {id: a, type: site}
  - {id: a, type: worker}
`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrDuplicateComponentID)
}

func TestParse_ComponentWithoutType(t *testing.T) {
	_, err := Parse([]byte("project: acme\ncomponents:\n  - {id: a}\n"))
	assert.ErrorIs(t, err, ErrInvalidComponent)
}

func TestLoad_ManifestWithComposeImport(t *testing.T) {
	dir := t.TempDir()

	compose := `
services:
  web:
    image: nginx:1.25
    environment:
      PORT: "8080"
  db:
    image: postgres:16
    volumes:
      - data:/var/lib/postgresql/data
volumes:
  data: {}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte(compose), 0o644))

	doc := `
project: acme
compose: compose.yaml
components:
  - {id: landing, type: site}
`
	path := filepath.Join(dir, "weld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	require.Len(t, m.Components, 3)
	assert.Equal(t, "landing", m.Components[0].ID)
	assert.Equal(t, "db", m.Components[1].ID)
	assert.Equal(t, "custom", m.Components[1].Type)
	assert.Equal(t, "web", m.Components[2].ID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
