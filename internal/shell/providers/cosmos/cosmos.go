// Package cosmos provides document database accounts. Creation is
// descriptor-only: the provider emits a deterministic account descriptor
// instead of calling a cloud API, which keeps runs reproducible in tests and
// local environments.
package cosmos

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
const Type = "cosmos"

const (
	// maxContainersPerAccount is the platform limit on containers in one
	// account.
	maxContainersPerAccount = 25
	maxSplits               = 4
)

// consistencyRanking orders consistency levels weakest first; the merge
// takes the strongest level any component asked for.
var consistencyRanking = []string{"eventual", "session", "bounded", "strong"}

var mergeSpec = merge.Spec{
	UnitField: "containers",
	Fields: map[string]merge.FieldRule{
		"containers":  {Strategy: merge.StrategyUnion, IdentityField: "name"},
		"throughput":  {Strategy: merge.StrategyMaximum},
		"consistency": {Strategy: merge.StrategyMaximum, Ranking: consistencyRanking},
	},
}

// Provider implements the cosmos resource type.
type Provider struct {
	logger *slog.Logger
}

// New creates a cosmos provider.
func New(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger.With("provider", Type)}
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CanProvide(r requirement.Requirement) bool {
	return r.Type == Type
}

func (p *Provider) MergeRequirements(g requirement.Group) (merge.Merged, error) {
	return merge.Merge(mergeSpec, g)
}

// ValidateMerged rejects configurations no account could satisfy.
func (p *Provider) ValidateMerged(m merge.Merged) validation.Result {
	if tp, ok := m.Config["throughput"]; ok {
		if n, isNum := asNumber(tp); !isNum || n <= 0 {
			return validation.Failf("throughput must be a positive number, got %v", tp)
		}
	}
	return validation.OK()
}

func (p *Provider) Capacity() capacity.Limit {
	return capacity.Limit{MaxUnits: maxContainersPerAccount, MaxSplits: maxSplits}
}

// ProvideResource emits the account descriptor for one bucket.
func (p *Provider) ProvideResource(_ context.Context, bucket capacity.Bucket, createCtx provider.CreateContext) (resource.Provided, error) {
	name := createCtx.ResourceName(Type, bucket.Index)

	containers := make([]string, 0, len(bucket.Units))
	for _, u := range bucket.Units {
		containers = append(containers, u.Identity)
	}

	handle := map[string]any{
		"accountName": name,
		"endpoint":    fmt.Sprintf("https://%s.documents.example.net:443/", name),
		"containers":  containers,
	}
	if v, ok := bucket.Config["throughput"]; ok {
		handle["throughput"] = v
	}
	if v, ok := bucket.Config["consistency"]; ok {
		handle["consistency"] = v
	}

	p.logger.Info("cosmos account provided",
		"name", name, "containers", len(containers), "members", len(bucket.Members))

	return resource.Provided{Name: name, Handle: handle}, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
