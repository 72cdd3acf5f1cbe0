// Package functions provides serverless app plans. The plan is unit-less:
// capacity counts contributing components rather than a decomposable
// collection, so a plan shared by too many components splits into sibling
// plans. Creation emits a deterministic plan descriptor.
package functions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/weld/internal/core/capacity"
	"github.com/artpar/weld/internal/core/merge"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
	"github.com/artpar/weld/internal/shell/provider"
)

// Type is the resource type this provider serves.
const Type = "functions"

const (
	// DefaultMaxComponents is the number of components one plan hosts
	// before splitting.
	DefaultMaxComponents = 50
	maxSplits            = 4
)

// tierRanking orders plan tiers cheapest first; the merge takes the highest
// tier any component asked for.
var tierRanking = []string{"consumption", "premium", "dedicated"}

// supportedRuntimes lists the runtimes a plan can host. All components on a
// shared plan must agree on one.
var supportedRuntimes = map[string]bool{
	"node":   true,
	"python": true,
	"dotnet": true,
	"go":     true,
}

var mergeSpec = merge.Spec{
	Fields: map[string]merge.FieldRule{
		"appSettings": {Strategy: merge.StrategyUnion, IdentityField: "name"},
		"runtime":     {Strategy: merge.StrategyExact},
		"tier":        {Strategy: merge.StrategyMaximum, Ranking: tierRanking},
		"timezone":    {Strategy: merge.StrategyPriority},
	},
}

// Provider implements the functions resource type.
type Provider struct {
	maxComponents int
	logger        *slog.Logger
}

// Option configures the provider.
type Option func(*Provider)

// WithMaxComponents overrides the per-plan component limit.
func WithMaxComponents(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxComponents = n
		}
	}
}

// New creates a functions provider.
func New(logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		maxComponents: DefaultMaxComponents,
		logger:        logger.With("provider", Type),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CanProvide(r requirement.Requirement) bool {
	return r.Type == Type
}

func (p *Provider) MergeRequirements(g requirement.Group) (merge.Merged, error) {
	return merge.Merge(mergeSpec, g)
}

func (p *Provider) ValidateMerged(m merge.Merged) validation.Result {
	if v, ok := m.Config["runtime"]; ok {
		s, isString := v.(string)
		if !isString || !supportedRuntimes[s] {
			return validation.Failf("unsupported runtime %v", v)
		}
	}
	return validation.OK()
}

func (p *Provider) Capacity() capacity.Limit {
	return capacity.Limit{MaxUnits: p.maxComponents, MaxSplits: maxSplits}
}

// ProvideResource emits the plan descriptor for one bucket.
func (p *Provider) ProvideResource(_ context.Context, bucket capacity.Bucket, createCtx provider.CreateContext) (resource.Provided, error) {
	name := createCtx.ResourceName(Type, bucket.Index)

	handle := map[string]any{
		"planName": name,
		"hostname": fmt.Sprintf("%s.functions.example.net", name),
	}
	for _, field := range []string{"runtime", "tier", "timezone", "appSettings"} {
		if v, ok := bucket.Config[field]; ok {
			handle[field] = v
		}
	}

	p.logger.Info("functions plan provided", "name", name, "members", len(bucket.Members))

	return resource.Provided{Name: name, Handle: handle}, nil
}
