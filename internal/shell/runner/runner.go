// Package runner executes one composition end to end: build the provider
// registry from the manifest, orchestrate the backend, persist the run, and
// emit the composition artifact.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/artpar/weld/internal/backend"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/shell/manifest"
	"github.com/artpar/weld/internal/shell/providers"
	"github.com/artpar/weld/internal/shell/store"
)

// DefaultArtifactPath is where the composition artifact is written when no
// path is configured.
const DefaultArtifactPath = "weld.out.yaml"

// =============================================================================
// Runner
// =============================================================================

// Runner drives manifests through the backend and records the outcome.
type Runner struct {
	store       store.Store
	catalog     *manifest.Catalog
	logger      *slog.Logger
	initWorkers int
}

// Option configures a Runner.
type Option func(*Runner)

// WithCatalog replaces the built-in component catalog.
func WithCatalog(c *manifest.Catalog) Option {
	return func(r *Runner) {
		r.catalog = c
	}
}

// WithInitWorkers sets the initialization pool width passed to the backend.
func WithInitWorkers(n int) Option {
	return func(r *Runner) {
		r.initWorkers = n
	}
}

// New creates a Runner.
func New(s store.Store, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:   s,
		catalog: manifest.NewCatalog(),
		logger:  logger.With("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of one executed composition. Err carries the
// orchestration failure when the run itself failed; Execute still returns
// nil in that case because the run was carried out and recorded.
type Result struct {
	Run    domain.Run
	Report backend.Report
	Err    error
}

// Execute runs the composition a manifest describes and persists it.
// Returned errors are setup or persistence failures; an orchestration
// failure is reported through the result.
func (r *Runner) Execute(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	registry, err := providers.BuildRegistry(m.Providers, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	defs, err := r.catalog.Definitions(m)
	if err != nil {
		return nil, err
	}

	var opts []backend.Option
	opts = append(opts, backend.WithLogger(r.logger))
	if r.initWorkers > 0 {
		opts = append(opts, backend.WithInitWorkers(r.initWorkers))
	}
	b := backend.New(m.Scope(), registry, opts...)

	for _, def := range defs {
		if err := b.AddComponent(def); err != nil {
			return nil, fmt.Errorf("add component %s: %w", def.ID, err)
		}
	}

	r.logger.Info("orchestrating",
		"run_id", b.ID(),
		"project", m.Project,
		"environment", m.Scope().Environment,
		"components", len(defs),
	)

	orchErr := b.Orchestrate(ctx)

	result := &Result{
		Run:    b.Run(),
		Report: b.Report(),
		Err:    orchErr,
	}

	if err := r.persist(ctx, result); err != nil {
		return nil, err
	}

	if orchErr != nil {
		r.logger.Error("run failed", "run_id", result.Run.ID, "error", orchErr)
	} else {
		r.logger.Info("run initialized",
			"run_id", result.Run.ID,
			"resources", len(result.Report.Resources),
			"components", len(result.Report.Components),
		)
	}
	return result, nil
}

// persist writes the run, its resources, and its component outcomes in one
// transaction. Failed runs are recorded too.
func (r *Runner) persist(ctx context.Context, result *Result) error {
	run := result.Run
	return r.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateRun(ctx, &run); err != nil {
			return err
		}
		for _, res := range result.Report.Resources {
			rec := &domain.ResourceRecord{
				RunID:          run.ID,
				ConcreteKey:    res.ConcreteKey,
				ResourceType:   res.Type,
				RequirementKey: res.Key,
				Name:           res.Name,
				Handle:         res.Handle,
				Units:          res.Units,
				Members:        res.Members,
			}
			if err := tx.CreateResource(ctx, rec); err != nil {
				return err
			}
		}
		for _, c := range result.Report.Components {
			rec := &domain.ComponentRecord{
				RunID:         run.ID,
				ComponentID:   c.ComponentID,
				ComponentType: c.ComponentType,
				Status:        domain.ComponentStatus(c.Status),
				Outputs:       c.Outputs,
				ErrorMessage:  c.Error,
			}
			if err := tx.CreateComponent(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Artifact
// =============================================================================

// WriteArtifact writes the composition artifact for a run.
func WriteArtifact(path string, report backend.Report) error {
	if path == "" {
		path = DefaultArtifactPath
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
