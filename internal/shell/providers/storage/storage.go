// Package storage provides blob storage accounts. Like the other built-in
// descriptor providers it performs no cloud calls: creation emits a
// deterministic account descriptor.
package storage

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
const Type = "storage"

const (
	// DefaultMaxContainers is the platform limit on containers per account
	// unless overridden.
	DefaultMaxContainers = 200
	maxSplits            = 8
)

// skuRanking orders redundancy tiers cheapest first; the merge takes the
// most durable tier any component asked for.
var skuRanking = []string{"standard-lrs", "standard-grs", "standard-ragrs", "premium-lrs"}

var mergeSpec = merge.Spec{
	UnitField: "containers",
	Fields: map[string]merge.FieldRule{
		"containers":     {Strategy: merge.StrategyUnion, IdentityField: "name"},
		"sku":            {Strategy: merge.StrategyMaximum, Ranking: skuRanking},
		"allowedOrigins": {Strategy: merge.StrategyIntersection},
	},
}

// Provider implements the storage resource type.
type Provider struct {
	maxContainers int
	logger        *slog.Logger
}

// Option configures the provider.
type Option func(*Provider)

// WithMaxContainers overrides the per-account container limit.
func WithMaxContainers(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxContainers = n
		}
	}
}

// New creates a storage provider.
func New(logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		maxContainers: DefaultMaxContainers,
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
	if v, ok := m.Config["publicAccess"]; ok {
		if _, isBool := v.(bool); !isBool {
			return validation.Failf("publicAccess must be a boolean, got %v", v)
		}
	}
	return validation.OK()
}

func (p *Provider) Capacity() capacity.Limit {
	return capacity.Limit{MaxUnits: p.maxContainers, MaxSplits: maxSplits}
}

// ProvideResource emits the account descriptor for one bucket.
func (p *Provider) ProvideResource(_ context.Context, bucket capacity.Bucket, createCtx provider.CreateContext) (resource.Provided, error) {
	name := createCtx.ResourceName(Type, bucket.Index)

	containers := make([]string, 0, len(bucket.Units))
	for _, u := range bucket.Units {
		containers = append(containers, u.Identity)
	}

	handle := map[string]any{
		"accountName":  name,
		"blobEndpoint": fmt.Sprintf("https://%s.blob.example.net/", name),
		"containers":   containers,
	}
	if v, ok := bucket.Config["sku"]; ok {
		handle["sku"] = v
	}
	if v, ok := bucket.Config["publicAccess"]; ok {
		handle["publicAccess"] = v
	}
	if v, ok := bucket.Config["allowedOrigins"]; ok {
		handle["allowedOrigins"] = v
	}

	p.logger.Info("storage account provided",
		"name", name, "containers", len(containers), "members", len(bucket.Members))

	return resource.Provided{Name: name, Handle: handle}, nil
}
