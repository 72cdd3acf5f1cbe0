// Package compute provides shared worker/instance pools. A pool is one
// concrete resource: requirements contribute named instances, the merge
// unions them, and creation generates a pool SSH keypair and boots every
// instance through the configured infrastructure backend (AWS,
// DigitalOcean, Hetzner, or local Docker for development runs).
package compute

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
const Type = "compute"

const (
	// DefaultMaxInstances is the instance limit per pool.
	DefaultMaxInstances = 5
	maxSplits           = 4
)

const (
	defaultSize   = "small"
	defaultImage  = "ubuntu-22.04"
	defaultRegion = "fra1"
)

var mergeSpec = merge.Spec{
	UnitField: "instances",
	Fields: map[string]merge.FieldRule{
		"instances": {Strategy: merge.StrategyUnion, IdentityField: "name"},
		"size":      {Strategy: merge.StrategyExact},
		"image":     {Strategy: merge.StrategyExact},
		"region":    {Strategy: merge.StrategyExact},
	},
}

// Provider implements the compute resource type.
type Provider struct {
	backend      Backend
	maxInstances int
	logger       *slog.Logger
}

// Option configures the provider.
type Option func(*Provider)

// WithMaxInstances overrides the per-pool instance limit.
func WithMaxInstances(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxInstances = n
		}
	}
}

// New creates a compute provider on top of an instance backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		backend:      backend,
		maxInstances: DefaultMaxInstances,
		logger:       logger.With("provider", Type, "backend", backend.Name()),
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
	for _, field := range []string{"size", "image", "region"} {
		if v, ok := m.Config[field]; ok {
			if s, isString := v.(string); !isString || s == "" {
				return validation.Failf("%s must be a non-empty string, got %v", field, v)
			}
		}
	}
	return validation.OK()
}

func (p *Provider) Capacity() capacity.Limit {
	return capacity.Limit{MaxUnits: p.maxInstances, MaxSplits: maxSplits}
}

// ProvideResource creates the pool for one bucket: a fresh SSH keypair, then
// one instance per contributed unit, booted in unit order.
func (p *Provider) ProvideResource(ctx context.Context, bucket capacity.Bucket, createCtx provider.CreateContext) (resource.Provided, error) {
	poolName := createCtx.ResourceName(Type, bucket.Index)

	pubKey, privKeyPEM, err := generateSSHKeyPair(poolName)
	if err != nil {
		return resource.Provided{}, fmt.Errorf("pool %s: %w", poolName, err)
	}

	size := stringField(bucket.Config, "size", defaultSize)
	image := stringField(bucket.Config, "image", defaultImage)
	region := stringField(bucket.Config, "region", defaultRegion)

	instances := make([]map[string]any, 0, len(bucket.Units))
	for _, u := range bucket.Units {
		req := InstanceRequest{
			Name:         fmt.Sprintf("%s-%s", poolName, u.Identity),
			Size:         size,
			Image:        image,
			Region:       region,
			SSHPublicKey: string(pubKey),
			Tags:         createCtx.Tags,
		}
		inst, err := p.backend.CreateInstance(ctx, req)
		if err != nil {
			return resource.Provided{}, fmt.Errorf("instance %s: %w", req.Name, err)
		}
		p.logger.Info("instance created",
			"pool", poolName, "instance", inst.Name, "instance_id", inst.ID, "ip", inst.PublicIP)

		instances = append(instances, map[string]any{
			"name":     u.Identity,
			"id":       inst.ID,
			"publicIp": inst.PublicIP,
		})
	}

	handle := map[string]any{
		"poolName":      poolName,
		"backend":       p.backend.Name(),
		"size":          size,
		"image":         image,
		"region":        region,
		"instances":     instances,
		"sshPublicKey":  string(pubKey),
		"sshPrivateKey": string(privKeyPEM),
	}

	return resource.Provided{Name: poolName, Handle: handle}, nil
}

func stringField(config map[string]any, field, fallback string) string {
	if s, ok := config[field].(string); ok && s != "" {
		return s
	}
	return fallback
}
