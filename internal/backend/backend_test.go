package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/component"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
	"github.com/artpar/weld/internal/shell/provider"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type testComponent struct {
	reqs       []requirement.Requirement
	rejectWith string
	initErr    error
	outputs    map[string]any
	view       *resource.ScopedView
}

func (c *testComponent) Requirements() []requirement.Requirement {
	return c.reqs
}

func (c *testComponent) ValidateResources(*resource.ScopedView) validation.Result {
	if c.rejectWith != "" {
		return validation.Fail(c.rejectWith)
	}
	return validation.OK()
}

func (c *testComponent) Initialize(_ context.Context, scoped *resource.ScopedView, _ domain.Scope) error {
	if c.initErr != nil {
		return c.initErr
	}
	c.view = scoped
	return nil
}

func (c *testComponent) Outputs() map[string]any {
	return c.outputs
}

// defComp declares a component whose factory returns a fresh testComponent
// with the given requirements on every build.
func defComp(id string, reqs ...requirement.Requirement) component.Definition {
	return component.Define(id, "test", nil, func(component.BuildContext, map[string]any) (component.Component, error) {
		return &testComponent{reqs: reqs, outputs: map[string]any{"id": id}}, nil
	})
}

type fakeProvider struct {
	resourceType string
	spec         merge.Spec
	limit        capacity.Limit
	accept       func(requirement.Requirement) bool
	validate     func(merge.Merged) validation.Result
	createErr    error
	creates      int
}

func (p *fakeProvider) Type() string { return p.resourceType }

func (p *fakeProvider) CanProvide(r requirement.Requirement) bool {
	if p.accept != nil {
		return p.accept(r)
	}
	return true
}

func (p *fakeProvider) MergeRequirements(g requirement.Group) (merge.Merged, error) {
	return merge.Merge(p.spec, g)
}

func (p *fakeProvider) ValidateMerged(m merge.Merged) validation.Result {
	if p.validate != nil {
		return p.validate(m)
	}
	return validation.OK()
}

func (p *fakeProvider) Capacity() capacity.Limit { return p.limit }

func (p *fakeProvider) ProvideResource(_ context.Context, b capacity.Bucket, _ provider.CreateContext) (resource.Provided, error) {
	if p.createErr != nil {
		return resource.Provided{}, p.createErr
	}
	p.creates++
	return resource.Provided{
		Handle: map[string]any{"endpoint": "https://" + b.ConcreteKey},
	}, nil
}

func newRegistry(t *testing.T, providers ...provider.Provider) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry(nil)
	for _, p := range providers {
		require.NoError(t, r.Register(p))
	}
	return r
}

func testScope() domain.Scope {
	return domain.Scope{Project: "acme", Environment: "test"}
}

func databaseSpec() merge.Spec {
	return merge.Spec{
		UnitField: "containers",
		Fields: map[string]merge.FieldRule{
			"containers": {Strategy: merge.StrategyUnion, IdentityField: "name"},
			"throughput": {Strategy: merge.StrategyMaximum},
		},
	}
}

func container(name string) map[string]any {
	return map[string]any{"name": name}
}

// =============================================================================
// Sharing
// =============================================================================

func TestBackend_SharedRequirementsYieldOneResource(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec(), limit: capacity.Limit{MaxUnits: 25, MaxSplits: 4}}
	b := New(testScope(), newRegistry(t, db))

	require.NoError(t, b.AddComponent(defComp("users-api",
		requirement.New("database", "shared", map[string]any{
			"containers": []any{container("User"), container("Session")},
			"throughput": 400,
		}))))
	require.NoError(t, b.AddComponent(defComp("orders-api",
		requirement.New("database", "shared", map[string]any{
			"containers": []any{container("Order")},
			"throughput": 1000,
		}))))
	require.NoError(t, b.AddComponent(defComp("audit",
		requirement.New("database", "shared", map[string]any{
			"containers": []any{container("AuditLog")},
		}))))

	require.NoError(t, b.Orchestrate(context.Background()))

	assert.Equal(t, domain.RunStateInitialized, b.State())
	assert.Equal(t, 1, db.creates)
	require.Equal(t, 1, b.Resources().Len())

	p, ok := b.Resources().Get("database:shared")
	require.True(t, ok)
	assert.Equal(t, "https://database:shared", p.Handle["endpoint"])
	assert.ElementsMatch(t, []string{"User", "Session", "Order", "AuditLog"}, p.Units)

	// Every component resolves the composite key to the same bucket.
	for _, id := range []string{"users-api", "orders-api", "audit"} {
		v, ok := b.ScopedView(id)
		require.True(t, ok)
		got, ok := v.Resolve("database", "shared")
		require.True(t, ok, id)
		assert.Equal(t, "database:shared", got.ConcreteKey)
	}
}

func TestBackend_DistinctKeysYieldDistinctResources(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, db))

	require.NoError(t, b.AddComponent(defComp("users-api",
		requirement.New("database", "users", map[string]any{"containers": []any{container("User")}}))))
	require.NoError(t, b.AddComponent(defComp("orders-api",
		requirement.New("database", "orders", map[string]any{"containers": []any{container("Order")}}))))

	require.NoError(t, b.Orchestrate(context.Background()))

	assert.Equal(t, 2, db.creates)
	assert.Equal(t, []string{"database:users", "database:orders"}, b.Resources().Keys())
}

func TestBackend_DisjointUnionCombines(t *testing.T) {
	fn := &fakeProvider{
		resourceType: "functions",
		spec: merge.Spec{Fields: map[string]merge.FieldRule{
			"appSettings": {Strategy: merge.StrategyUnion, IdentityField: "name"},
		}},
	}
	b := New(testScope(), newRegistry(t, fn))

	require.NoError(t, b.AddComponent(defComp("api",
		requirement.New("functions", "app", map[string]any{
			"appSettings": []any{map[string]any{"name": "DB_URL", "value": "x"}},
		}))))
	require.NoError(t, b.AddComponent(defComp("jobs",
		requirement.New("functions", "app", map[string]any{
			"appSettings": []any{map[string]any{"name": "QUEUE_URL", "value": "y"}},
		}))))

	require.NoError(t, b.Orchestrate(context.Background()))
	assert.Equal(t, 1, fn.creates)
	assert.Empty(t, b.Warnings())
}

// =============================================================================
// Analysis Failures
// =============================================================================

func TestBackend_ConflictFailsBeforeAnyCreation(t *testing.T) {
	st := &fakeProvider{resourceType: "storage", spec: merge.Spec{}}
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, st, db))

	// The storage group conflicts; the database group is healthy but must
	// still not be created.
	require.NoError(t, b.AddComponent(defComp("site",
		requirement.New("storage", "shared", map[string]any{"publicAccess": true}),
		requirement.New("database", "main", map[string]any{"containers": []any{container("Page")}}))))
	require.NoError(t, b.AddComponent(defComp("vault",
		requirement.New("storage", "shared", map[string]any{"publicAccess": false}))))

	err := b.Orchestrate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, merge.ErrConflict)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "analysis", agg.Phase)

	assert.Equal(t, domain.RunStateFailed, b.State())
	assert.Equal(t, 0, st.creates)
	assert.Equal(t, 0, db.creates)
	assert.Equal(t, 0, b.Resources().Len())
}

func TestBackend_UnknownResourceTypeAccumulated(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, db))

	require.NoError(t, b.AddComponent(defComp("api",
		requirement.New("queue", "events", nil),
		requirement.New("cache", "sessions", nil))))

	err := b.Orchestrate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownResourceType)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errs, 2)
}

func TestBackend_MergedRejectedByProvider(t *testing.T) {
	st := &fakeProvider{
		resourceType: "storage",
		validate: func(merge.Merged) validation.Result {
			return validation.Fail("sku not available in region")
		},
	}
	b := New(testScope(), newRegistry(t, st))

	require.NoError(t, b.AddComponent(defComp("site", requirement.New("storage", "assets", nil))))

	err := b.Orchestrate(context.Background())
	assert.ErrorIs(t, err, ErrMergedRejected)
	assert.Equal(t, 0, st.creates)
}

func TestBackend_CapacityExceededIsAnalysisError(t *testing.T) {
	st := &fakeProvider{
		resourceType: "storage",
		spec: merge.Spec{
			UnitField: "containers",
			Fields:    map[string]merge.FieldRule{"containers": {Strategy: merge.StrategyUnion, IdentityField: "name"}},
		},
		limit: capacity.Limit{MaxUnits: 2, MaxSplits: 2},
	}
	b := New(testScope(), newRegistry(t, st))

	containers := make([]any, 5)
	for i, n := range []string{"a", "b", "c", "d", "e"} {
		containers[i] = container(n)
	}
	require.NoError(t, b.AddComponent(defComp("site",
		requirement.New("storage", "assets", map[string]any{"containers": containers}))))

	err := b.Orchestrate(context.Background())
	assert.ErrorIs(t, err, capacity.ErrExceeded)
	assert.Equal(t, 0, st.creates)
	assert.Equal(t, domain.RunStateFailed, b.State())
}

// =============================================================================
// Capacity Splitting
// =============================================================================

func TestBackend_CapacitySplitBindsOverflowUnits(t *testing.T) {
	st := &fakeProvider{
		resourceType: "storage",
		spec: merge.Spec{
			UnitField: "containers",
			Fields:    map[string]merge.FieldRule{"containers": {Strategy: merge.StrategyUnion, IdentityField: "name"}},
		},
		limit: capacity.Limit{MaxUnits: 2, MaxSplits: 4},
	}
	b := New(testScope(), newRegistry(t, st))

	require.NoError(t, b.AddComponent(defComp("alpha",
		requirement.New("storage", "assets", map[string]any{
			"containers": []any{container("a"), container("b"), container("c")},
		}))))
	require.NoError(t, b.AddComponent(defComp("beta",
		requirement.New("storage", "assets", map[string]any{
			"containers": []any{container("d"), container("e")},
		}))))

	require.NoError(t, b.Orchestrate(context.Background()))

	assert.Equal(t, 3, st.creates)
	assert.Equal(t, []string{"storage:assets", "storage:assets-2", "storage:assets-3"}, b.Resources().Keys())

	// alpha's first contribution landed in bucket 1, beta's in bucket 2.
	alpha, _ := b.ScopedView("alpha")
	p, ok := alpha.Resolve("storage", "assets")
	require.True(t, ok)
	assert.Equal(t, "storage:assets", p.ConcreteKey)

	beta, _ := b.ScopedView("beta")
	p, ok = beta.Resolve("storage", "assets")
	require.True(t, ok)
	assert.Equal(t, "storage:assets-2", p.ConcreteKey)

	// Overflow sub-resources stay reachable by identity.
	p, ok = alpha.Unit("storage:assets", "c")
	require.True(t, ok)
	assert.Equal(t, "storage:assets-2", p.ConcreteKey)

	p, ok = beta.Unit("storage:assets", "e")
	require.True(t, ok)
	assert.Equal(t, "storage:assets-3", p.ConcreteKey)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestBackend_DuplicateComponentRejected(t *testing.T) {
	b := New(testScope(), newRegistry(t))

	require.NoError(t, b.AddComponent(defComp("api")))
	err := b.AddComponent(defComp("api"))
	assert.ErrorIs(t, err, ErrDuplicateComponent)
}

func TestBackend_SecondOrchestrateIsIllegal(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, db))
	require.NoError(t, b.AddComponent(defComp("api",
		requirement.New("database", "main", map[string]any{"containers": []any{container("User")}}))))

	require.NoError(t, b.Orchestrate(context.Background()))
	before := b.Resources().Len()

	err := b.Orchestrate(context.Background())
	assert.ErrorIs(t, err, ErrIllegalState)
	assert.Equal(t, domain.RunStateInitialized, b.State())
	assert.Equal(t, before, b.Resources().Len())
	assert.Equal(t, 1, db.creates)
}

func TestBackend_AddComponentAfterOrchestrateIsIllegal(t *testing.T) {
	b := New(testScope(), newRegistry(t))
	require.NoError(t, b.AddComponent(defComp("api")))
	require.NoError(t, b.Orchestrate(context.Background()))

	assert.ErrorIs(t, b.AddComponent(defComp("late")), ErrIllegalState)
}

func TestBackend_CreateFailurePropagates(t *testing.T) {
	boom := errors.New("quota exhausted")
	st := &fakeProvider{resourceType: "storage", createErr: boom}
	b := New(testScope(), newRegistry(t, st))
	require.NoError(t, b.AddComponent(defComp("site", requirement.New("storage", "assets", nil))))

	err := b.Orchestrate(context.Background())
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.RunStateFailed, b.State())
}

func TestBackend_InitFailuresAccumulatePerComponent(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, db))

	boom := errors.New("cannot reach endpoint")
	require.NoError(t, b.AddComponent(component.Define("bad-init", "test", nil,
		func(component.BuildContext, map[string]any) (component.Component, error) {
			return &testComponent{
				reqs:    []requirement.Requirement{requirement.New("database", "main", nil)},
				initErr: boom,
			}, nil
		})))
	require.NoError(t, b.AddComponent(component.Define("rejects", "test", nil,
		func(component.BuildContext, map[string]any) (component.Component, error) {
			return &testComponent{rejectWith: "missing binding"}, nil
		})))
	require.NoError(t, b.AddComponent(defComp("healthy",
		requirement.New("database", "main", map[string]any{"containers": []any{container("User")}}))))

	err := b.Orchestrate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComponentFailed)
	assert.Equal(t, domain.RunStateFailed, b.State())

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "initialization", agg.Phase)
	assert.Len(t, agg.Errs, 2)

	// The failing siblings never stopped the healthy one.
	outcomes := b.Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.ComponentStatusFailed, outcomes[0].Status)
	assert.Equal(t, domain.ComponentStatusRejected, outcomes[1].Status)
	assert.Equal(t, domain.ComponentStatusInitialized, outcomes[2].Status)

	// Resources were created before initialization failed; they stay.
	assert.Equal(t, 1, b.Resources().Len())
}

// =============================================================================
// Determinism
// =============================================================================

func TestBackend_MergedConfigIndependentOfDeclarationOrder(t *testing.T) {
	run := func(defs ...component.Definition) Report {
		db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
		b := New(testScope(), newRegistry(t, db))
		for _, def := range defs {
			require.NoError(t, b.AddComponent(def))
		}
		require.NoError(t, b.Orchestrate(context.Background()))
		return b.Report()
	}

	a := defComp("a", requirement.New("database", "shared", map[string]any{
		"containers": []any{container("User")}, "throughput": 400}))
	z := defComp("z", requirement.New("database", "shared", map[string]any{
		"containers": []any{container("Order")}, "throughput": 1000}))

	first := run(a, z)
	second := run(z, a)

	require.Len(t, first.Resources, 1)
	require.Len(t, second.Resources, 1)
	assert.Equal(t, first.Resources[0].ConcreteKey, second.Resources[0].ConcreteKey)
	assert.ElementsMatch(t, first.Resources[0].Units, second.Resources[0].Units)
}

// =============================================================================
// Accessors
// =============================================================================

func TestBackend_ComponentAs(t *testing.T) {
	b := New(testScope(), newRegistry(t))
	require.NoError(t, b.AddComponent(defComp("api")))
	require.NoError(t, b.Orchestrate(context.Background()))

	got, err := ComponentAs[*testComponent](b, "api")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "api"}, got.Outputs())

	_, err = ComponentAs[*testComponent](b, "missing")
	assert.ErrorIs(t, err, ErrUnknownComponent)

	type other interface{ Never() }
	_, err = ComponentAs[other](b, "api")
	assert.ErrorIs(t, err, component.ErrTypeMismatch)
}

func TestBackend_ReportSummarizesRun(t *testing.T) {
	db := &fakeProvider{resourceType: "database", spec: databaseSpec()}
	b := New(testScope(), newRegistry(t, db))
	require.NoError(t, b.AddComponent(defComp("api",
		requirement.New("database", "main", map[string]any{"containers": []any{container("User")}}))))
	require.NoError(t, b.Orchestrate(context.Background()))

	r := b.Report()
	assert.Equal(t, b.ID(), r.RunID)
	assert.Equal(t, "acme", r.Project)
	assert.Equal(t, domain.RunStateInitialized, r.State)
	assert.Equal(t, 1, r.Requirements)
	assert.Equal(t, 1, r.Groups)
	require.Len(t, r.Resources, 1)
	require.Len(t, r.Components, 1)
	assert.Equal(t, "initialized", r.Components[0].Status)
}
