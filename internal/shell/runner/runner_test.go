package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/weld/internal/backend"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/shell/manifest"
	"github.com/artpar/weld/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(t *testing.T) (*Runner, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, testLogger()), s
}

func parseManifest(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(doc))
	require.NoError(t, err)
	return m
}

const healthyManifest = `
project: acme
environment: test
components:
  - id: users-api
    type: webapp
    config:
      database: users
      runtime: node
  - id: orders-api
    type: webapp
    config:
      database: orders
      runtime: node
  - id: landing
    type: site
`

// Two webapps demanding different runtimes on the same plan cannot merge.
const conflictingManifest = `
project: acme
environment: test
components:
  - id: a
    type: webapp
    config: {runtime: node}
  - id: b
    type: webapp
    config: {runtime: python}
`

// =============================================================================
// Execute
// =============================================================================

func TestRunner_ExecuteInitializesRun(t *testing.T) {
	r, _ := newRunner(t)

	result, err := r.Execute(context.Background(), parseManifest(t, healthyManifest))
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.RunStateInitialized, result.Run.State)
	// Two webapps share one database account and one plan; the site gets
	// its own storage account.
	assert.Len(t, result.Report.Resources, 3)
	assert.Len(t, result.Report.Components, 3)
	for _, c := range result.Report.Components {
		assert.Equal(t, "initialized", c.Status)
	}
}

func TestRunner_ExecutePersistsRun(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	result, err := r.Execute(ctx, parseManifest(t, healthyManifest))
	require.NoError(t, err)

	got, err := s.GetRun(ctx, result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateInitialized, got.State)
	assert.Equal(t, 3, got.ComponentCount)

	resources, err := s.ListResourcesByRun(ctx, result.Run.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 3)

	components, err := s.ListComponentsByRun(ctx, result.Run.ID)
	require.NoError(t, err)
	require.Len(t, components, 3)
	for _, c := range components {
		assert.Equal(t, domain.ComponentStatusInitialized, c.Status)
	}
}

func TestRunner_ExecuteRecordsFailedRun(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	result, err := r.Execute(ctx, parseManifest(t, conflictingManifest))
	require.NoError(t, err)
	require.Error(t, result.Err)

	assert.Equal(t, domain.RunStateFailed, result.Run.State)
	assert.Empty(t, result.Report.Resources)

	got, err := s.GetRun(ctx, result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestRunner_ExecuteUnknownProviderIsSetupError(t *testing.T) {
	r, _ := newRunner(t)

	m := parseManifest(t, healthyManifest)
	m.Providers.Enabled = []string{"mystery"}

	_, err := r.Execute(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRunner_ExecuteUnknownComponentTypeIsSetupError(t *testing.T) {
	r, _ := newRunner(t)

	m := parseManifest(t, "project: acme\ncomponents:\n  - {id: a, type: mystery}\n")

	_, err := r.Execute(context.Background(), m)
	assert.ErrorIs(t, err, manifest.ErrUnknownComponentType)
}

// =============================================================================
// Artifact
// =============================================================================

func TestWriteArtifact(t *testing.T) {
	r, _ := newRunner(t)

	result, err := r.Execute(context.Background(), parseManifest(t, healthyManifest))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weld.out.yaml")
	require.NoError(t, WriteArtifact(path, result.Report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded backend.Report
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, result.Run.ID, decoded.RunID)
	assert.Equal(t, "acme", decoded.Project)
	assert.Len(t, decoded.Resources, 3)
}
