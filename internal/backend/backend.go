package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/component"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/naming"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/shell/provider"
)

// =============================================================================
// Options
// =============================================================================

// Option configures a backend at construction time.
type Option func(*Backend)

// WithLogger sets the backend's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithNamer overrides the resource naming collaborator.
func WithNamer(namer naming.Formatter) Option {
	return func(b *Backend) {
		if namer != nil {
			b.namer = namer
		}
	}
}

// WithInitWorkers bounds the number of components initialized concurrently.
// The default of 1 keeps initialization sequential in declaration order.
func WithInitWorkers(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.initWorkers = n
		}
	}
}

// =============================================================================
// Backend
// =============================================================================

// Backend drives one orchestration run: it collects component definitions,
// resolves their requirements through the registered providers, creates the
// concrete resources, and initializes every component against its scoped
// view of the result.
//
// A backend is single-use. It accepts definitions only in the created state,
// orchestrates exactly once, and ends in initialized or failed. It is not
// safe for concurrent use; the initialization worker pool is the only
// concurrency it introduces itself.
type Backend struct {
	run      *domain.Run
	scope    domain.Scope
	registry *provider.Registry
	namer    naming.Formatter
	logger   *slog.Logger

	initWorkers int

	defs    []component.Definition
	defined map[string]bool

	resources  *resource.Map
	views      map[string]*resource.ScopedView
	components map[string]component.Component
	outcomes   []ComponentOutcome
	warnings   []merge.Warning

	declaredCount int
	groupCount    int
	err           error
}

// New creates a backend for one run in the given scope.
func New(scope domain.Scope, registry *provider.Registry, opts ...Option) *Backend {
	b := &Backend{
		run:         domain.NewRun(scope.Project, scope.Environment),
		scope:       scope,
		registry:    registry,
		namer:       naming.Default,
		logger:      slog.Default(),
		initWorkers: 1,
		defined:     make(map[string]bool),
		resources:   resource.NewMap(),
		views:       make(map[string]*resource.ScopedView),
		components:  make(map[string]component.Component),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "backend", "run_id", b.run.ID)
	return b
}

// ID returns the run identifier.
func (b *Backend) ID() string {
	return b.run.ID
}

// State returns the current run state.
func (b *Backend) State() domain.RunState {
	return b.run.State
}

// Run returns a copy of the run record.
func (b *Backend) Run() domain.Run {
	return *b.run
}

// AddComponent registers a component definition. Only allowed before
// orchestration starts.
func (b *Backend) AddComponent(def component.Definition) error {
	if b.run.State != domain.RunStateCreated {
		return fmt.Errorf("%w: cannot add components in state %q", ErrIllegalState, b.run.State)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if b.defined[def.ID] {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, def.ID)
	}

	b.defined[def.ID] = true
	b.defs = append(b.defs, def)
	b.run.ComponentCount = len(b.defs)
	return nil
}

// =============================================================================
// Orchestration
// =============================================================================

// groupPlan is the fully analyzed shape of one requirement group, ready for
// creation.
type groupPlan struct {
	group   requirement.Group
	prov    provider.Provider
	merged  merge.Merged
	buckets []capacity.Bucket
}

// Orchestrate runs the full lifecycle: collect requirements, merge and
// validate every group, split by capacity, create the concrete resources,
// and initialize every component against its scoped view.
//
// Analysis errors across all groups are accumulated and reported together;
// no creation call is issued while any group has an unresolved error. A
// creation failure is propagated immediately; resources already created stay
// in the map (no rollback). Initialization failures are accumulated per
// component and never abort siblings.
func (b *Backend) Orchestrate(ctx context.Context) error {
	if err := b.run.Transition(domain.RunStateOrchestrating); err != nil {
		return fmt.Errorf("%w: orchestrate from state %q", ErrIllegalState, b.run.State)
	}
	b.logger.Info("orchestration started", "components", len(b.defs))

	declared, collectErrs := b.collect()
	b.declaredCount = len(declared)

	groups := requirement.GroupBy(declared)
	b.groupCount = len(groups)
	plans, analysisErrs := b.analyze(groups)

	if errs := append(collectErrs, analysisErrs...); len(errs) > 0 {
		agg := &AggregateError{Phase: "analysis", Errs: errs}
		b.fail(agg)
		return agg
	}
	b.logger.Info("analysis complete",
		"requirements", len(declared), "groups", len(groups), "warnings", len(b.warnings))

	if err := b.create(ctx, plans); err != nil {
		b.fail(err)
		return err
	}

	if err := b.bindViews(plans); err != nil {
		b.fail(err)
		return err
	}
	b.resources.Freeze()
	b.logger.Info("resources provided", "resources", b.resources.Len())

	if errs := b.initialize(ctx); len(errs) > 0 {
		agg := &AggregateError{Phase: "initialization", Errs: errs}
		b.fail(agg)
		return agg
	}

	if err := b.run.Transition(domain.RunStateInitialized); err != nil {
		return err
	}
	b.run.ResourceCount = b.resources.Len()
	b.logger.Info("orchestration complete",
		"resources", b.resources.Len(), "components", len(b.defs))
	return nil
}

// collect probes every definition for its requirements and attributes them
// with a global declaration index.
func (b *Backend) collect() ([]requirement.Declared, []error) {
	var (
		declared []requirement.Declared
		errs     []error
	)
	index := 0
	for _, def := range b.defs {
		comp, err := def.Build(component.BuildContext{Mode: component.ModeProbe, Scope: b.scope}, def.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("probing component %q: %w", def.ID, err))
			continue
		}
		for _, req := range comp.Requirements() {
			req = req.Normalized()
			if err := req.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("component %q declared invalid requirement: %w", def.ID, err))
				continue
			}
			declared = append(declared, requirement.Declared{
				Requirement: req,
				ComponentID: def.ID,
				Index:       index,
			})
			index++
		}
	}
	return declared, errs
}

// analyze resolves every group through its provider: merge, validate, split.
// Errors are accumulated across groups so the author sees all of them at
// once; a group with any error produces no plan.
func (b *Backend) analyze(groups []requirement.Group) ([]groupPlan, []error) {
	var (
		plans []groupPlan
		errs  []error
	)
	for _, g := range groups {
		prov, ok := b.registry.For(g.Type)
		if !ok {
			errs = append(errs, &UnknownTypeError{
				ResourceType: g.Type,
				CompositeKey: g.CompositeKey,
				Components:   g.ComponentIDs(),
			})
			continue
		}

		accepted := true
		for _, m := range g.Members {
			if !prov.CanProvide(m.Requirement) {
				errs = append(errs, &RejectedError{
					CompositeKey: g.CompositeKey,
					Reason:       fmt.Sprintf("provider %q does not accept the requirement declared by %q", g.Type, m.ComponentID),
				})
				accepted = false
			}
		}
		if !accepted {
			continue
		}

		merged, err := prov.MergeRequirements(g)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.warnings = append(b.warnings, merged.Warnings...)

		if res := prov.ValidateMerged(merged); !res.Ok() {
			errs = append(errs, &RejectedError{CompositeKey: g.CompositeKey, Reason: res.Reason})
			continue
		}

		buckets, err := capacity.Split(merged, prov.Capacity())
		if err != nil {
			errs = append(errs, err)
			continue
		}

		plans = append(plans, groupPlan{group: g, prov: prov, merged: merged, buckets: buckets})
	}
	return plans, errs
}

// create issues one creation call per bucket, in group then bucket order.
func (b *Backend) create(ctx context.Context, plans []groupPlan) error {
	createCtx := provider.CreateContext{
		BackendID: b.run.ID,
		Scope:     b.scope,
		Namer:     b.namer,
		Tags:      b.scope.MergedTags(nil),
		Created:   b.resources,
	}

	for _, plan := range plans {
		for _, bucket := range plan.buckets {
			name := b.namer.ResourceName(plan.merged.Type, b.run.ID, bucket.Index)
			b.logger.Debug("creating resource",
				"concrete_key", bucket.ConcreteKey, "name", name, "members", len(bucket.Members))

			p, err := plan.prov.ProvideResource(ctx, bucket, createCtx)
			if err != nil {
				return &ProviderError{
					ResourceType: plan.merged.Type,
					ConcreteKey:  bucket.ConcreteKey,
					Err:          err,
				}
			}

			fillProvided(&p, plan.merged, bucket, name)
			if err := b.resources.Add(p); err != nil {
				return &ProviderError{
					ResourceType: plan.merged.Type,
					ConcreteKey:  bucket.ConcreteKey,
					Err:          err,
				}
			}
		}
	}
	return nil
}

// fillProvided backfills the bookkeeping fields a provider is allowed to
// leave empty, so the resource map stays consistent with the plan.
func fillProvided(p *resource.Provided, m merge.Merged, bucket capacity.Bucket, name string) {
	if p.ConcreteKey == "" {
		p.ConcreteKey = bucket.ConcreteKey
	}
	if p.CompositeKey == "" {
		p.CompositeKey = bucket.CompositeKey
	}
	if p.Type == "" {
		p.Type = m.Type
	}
	if p.Key == "" {
		p.Key = m.Key
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.Units == nil && len(bucket.Units) > 0 {
		p.Units = make([]string, 0, len(bucket.Units))
		for _, u := range bucket.Units {
			p.Units = append(p.Units, u.Identity)
		}
	}
	if p.Members == nil {
		p.Members = bucket.Members
	}
}

// bindViews assembles one scoped view per component. Each composite key
// resolves to the bucket holding the component's first-declared
// contribution; sub-resources that landed in overflow buckets stay reachable
// through unit bindings.
func (b *Backend) bindViews(plans []groupPlan) error {
	for _, def := range b.defs {
		b.views[def.ID] = resource.NewScopedView(def.ID, b.resources)
	}

	for _, plan := range plans {
		composite := plan.merged.CompositeKey

		for _, bucket := range plan.buckets {
			for _, u := range bucket.Units {
				for _, id := range u.Members {
					if err := b.views[id].BindUnit(composite, u.Identity, bucket.ConcreteKey); err != nil {
						return err
					}
				}
			}
			// First binding wins, so walking buckets in order resolves
			// each member to the bucket of its first contribution.
			for _, id := range bucket.Members {
				if err := b.views[id].Bind(composite, bucket.ConcreteKey); err != nil {
					return err
				}
			}
		}

		// Members whose contribution carried no countable entries still
		// resolve to the group's first bucket.
		first := plan.buckets[0].ConcreteKey
		for _, id := range plan.group.ComponentIDs() {
			if _, bound := b.views[id].Composite(composite); !bound {
				if err := b.views[id].Bind(composite, first); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// =============================================================================
// Initialization Phase
// =============================================================================

// ComponentOutcome is the recorded result of one component's initialization.
type ComponentOutcome struct {
	ComponentID   string
	ComponentType string
	Status        domain.ComponentStatus
	Outputs       map[string]any
	Failure       *ComponentFailure
}

// initialize builds every component in provision mode, validates its scoped
// view, and runs its setup through a bounded worker pool. Failures are
// collected, never propagated mid-phase.
func (b *Backend) initialize(ctx context.Context) []error {
	width := b.initWorkers
	if width < 1 {
		width = 1
	}

	comps := make([]component.Component, len(b.defs))
	outcomes := make([]ComponentOutcome, len(b.defs))

	sem := make(chan struct{}, width)
	var wg sync.WaitGroup
	for i, def := range b.defs {
		wg.Add(1)
		go func(i int, def component.Definition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			comps[i], outcomes[i] = b.initializeOne(ctx, def)
		}(i, def)
	}
	wg.Wait()

	var errs []error
	for i, def := range b.defs {
		b.outcomes = append(b.outcomes, outcomes[i])
		if outcomes[i].Status == domain.ComponentStatusInitialized {
			b.components[def.ID] = comps[i]
		}
		if outcomes[i].Failure != nil {
			errs = append(errs, outcomes[i].Failure)
		}
	}
	return errs
}

func (b *Backend) initializeOne(ctx context.Context, def component.Definition) (component.Component, ComponentOutcome) {
	outcome := ComponentOutcome{ComponentID: def.ID, ComponentType: def.Type}
	view := b.views[def.ID]

	comp, err := def.Build(component.BuildContext{Mode: component.ModeProvision, Scope: b.scope}, def.Config)
	if err != nil {
		outcome.Status = domain.ComponentStatusFailed
		outcome.Failure = &ComponentFailure{ComponentID: def.ID, Stage: "factory", Err: err}
		return nil, outcome
	}

	if res := comp.ValidateResources(view); !res.Ok() {
		outcome.Status = domain.ComponentStatusRejected
		outcome.Failure = &ComponentFailure{ComponentID: def.ID, Stage: "validate", Reason: res.Reason}
		return nil, outcome
	}

	if err := comp.Initialize(ctx, view, b.scope); err != nil {
		outcome.Status = domain.ComponentStatusFailed
		outcome.Failure = &ComponentFailure{ComponentID: def.ID, Stage: "initialize", Err: err}
		return nil, outcome
	}

	outcome.Status = domain.ComponentStatusInitialized
	outcome.Outputs = comp.Outputs()
	b.logger.Debug("component initialized", "component_id", def.ID)
	return comp, outcome
}

func (b *Backend) fail(err error) {
	b.err = err
	b.run.ResourceCount = b.resources.Len()
	_ = b.run.TransitionToFailed(err.Error())
	b.logger.Error("orchestration failed", "error", err)
}

// =============================================================================
// Accessors
// =============================================================================

// Resources returns the resource map. Frozen once orchestration reaches the
// initialization phase.
func (b *Backend) Resources() *resource.Map {
	return b.resources
}

// ScopedView returns the view assembled for one component.
func (b *Backend) ScopedView(componentID string) (*resource.ScopedView, bool) {
	v, ok := b.views[componentID]
	return v, ok
}

// Components returns the declared component IDs in declaration order.
func (b *Backend) Components() []string {
	ids := make([]string, 0, len(b.defs))
	for _, def := range b.defs {
		ids = append(ids, def.ID)
	}
	return ids
}

// Component returns an initialized component by ID.
func (b *Backend) Component(componentID string) (component.Component, bool) {
	c, ok := b.components[componentID]
	return c, ok
}

// Outputs returns the outputs of one initialized component.
func (b *Backend) Outputs(componentID string) (map[string]any, bool) {
	c, ok := b.components[componentID]
	if !ok {
		return nil, false
	}
	return c.Outputs(), true
}

// Outcomes returns the per-component initialization outcomes, in declaration
// order. Empty before the initialization phase ran.
func (b *Backend) Outcomes() []ComponentOutcome {
	return append([]ComponentOutcome(nil), b.outcomes...)
}

// Warnings returns the non-fatal observations accumulated while merging.
func (b *Backend) Warnings() []merge.Warning {
	return append([]merge.Warning(nil), b.warnings...)
}

// Err returns the error that failed the run, if any.
func (b *Backend) Err() error {
	return b.err
}

// ComponentAs returns an initialized component asserted to a concrete type.
func ComponentAs[T any](b *Backend, componentID string) (T, error) {
	var zero T
	c, ok := b.components[componentID]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", component.ErrTypeMismatch, componentID, c)
	}
	return t, nil
}

// =============================================================================
// Report
// =============================================================================

// Report is the serializable summary of one run.
type Report struct {
	RunID        string            `json:"run_id" yaml:"run_id"`
	Project      string            `json:"project" yaml:"project"`
	Environment  string            `json:"environment" yaml:"environment"`
	State        domain.RunState   `json:"state" yaml:"state"`
	Error        string            `json:"error,omitempty" yaml:"error,omitempty"`
	Requirements int               `json:"requirements" yaml:"requirements"`
	Groups       int               `json:"groups" yaml:"groups"`
	Resources    []ResourceReport  `json:"resources" yaml:"resources"`
	Components   []ComponentReport `json:"components" yaml:"components"`
	Warnings     []merge.Warning   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ResourceReport summarizes one provided resource.
type ResourceReport struct {
	ConcreteKey string         `json:"concrete_key" yaml:"concrete_key"`
	Type        string         `json:"type" yaml:"type"`
	Key         string         `json:"key" yaml:"key"`
	Name        string         `json:"name" yaml:"name"`
	Handle      map[string]any `json:"handle,omitempty" yaml:"handle,omitempty"`
	Units       []string       `json:"units,omitempty" yaml:"units,omitempty"`
	Members     []string       `json:"members,omitempty" yaml:"members,omitempty"`
}

// ComponentReport summarizes one component's outcome.
type ComponentReport struct {
	ComponentID   string         `json:"component_id" yaml:"component_id"`
	ComponentType string         `json:"component_type" yaml:"component_type"`
	Status        string         `json:"status" yaml:"status"`
	Outputs       map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Error         string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarizes the run for persistence and artifact output.
func (b *Backend) Report() Report {
	r := Report{
		RunID:        b.run.ID,
		Project:      b.run.Project,
		Environment:  b.run.Environment,
		State:        b.run.State,
		Error:        b.run.ErrorMessage,
		Requirements: b.declaredCount,
		Groups:       b.groupCount,
		Warnings:     b.Warnings(),
	}
	for _, p := range b.resources.All() {
		r.Resources = append(r.Resources, ResourceReport{
			ConcreteKey: p.ConcreteKey,
			Type:        p.Type,
			Key:         p.Key,
			Name:        p.Name,
			Handle:      p.Handle,
			Units:       p.Units,
			Members:     p.Members,
		})
	}
	for _, o := range b.outcomes {
		cr := ComponentReport{
			ComponentID:   o.ComponentID,
			ComponentType: o.ComponentType,
			Status:        string(o.Status),
			Outputs:       o.Outputs,
		}
		if o.Failure != nil {
			cr.Error = o.Failure.Error()
		}
		r.Components = append(r.Components, cr)
	}
	return r
}
