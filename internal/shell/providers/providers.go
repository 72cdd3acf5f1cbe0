// Package providers assembles the built-in provider set into a registry.
package providers

import (
	"fmt"
	"log/slog"

	"github.com/artpar/weld/internal/shell/provider"
	"github.com/artpar/weld/internal/shell/providers/compute"
	"github.com/artpar/weld/internal/shell/providers/cosmos"
	"github.com/artpar/weld/internal/shell/providers/functions"
	"github.com/artpar/weld/internal/shell/providers/storage"
)

// Config selects and tunes the built-in providers.
type Config struct {
	// Enabled lists the resource types to register. Empty means the three
	// descriptor providers; compute must be opted into because it needs a
	// reachable infrastructure backend.
	Enabled []string `mapstructure:"enabled" yaml:"enabled"`

	Storage struct {
		MaxContainers int `mapstructure:"max_containers" yaml:"max_containers"`
	} `mapstructure:"storage" yaml:"storage"`

	Functions struct {
		MaxComponents int `mapstructure:"max_components" yaml:"max_components"`
	} `mapstructure:"functions" yaml:"functions"`

	Compute compute.BackendConfig `mapstructure:"compute" yaml:"compute"`
}

// DefaultEnabled is the provider set registered when none is configured.
var DefaultEnabled = []string{cosmos.Type, storage.Type, functions.Type}

// BuildRegistry creates a registry holding the configured providers.
func BuildRegistry(cfg Config, logger *slog.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	enabled := cfg.Enabled
	if len(enabled) == 0 {
		enabled = DefaultEnabled
	}

	registry := provider.NewRegistry(logger)
	for _, resourceType := range enabled {
		p, err := build(resourceType, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func build(resourceType string, cfg Config, logger *slog.Logger) (provider.Provider, error) {
	switch resourceType {
	case cosmos.Type:
		return cosmos.New(logger), nil

	case storage.Type:
		var opts []storage.Option
		if cfg.Storage.MaxContainers > 0 {
			opts = append(opts, storage.WithMaxContainers(cfg.Storage.MaxContainers))
		}
		return storage.New(logger, opts...), nil

	case functions.Type:
		var opts []functions.Option
		if cfg.Functions.MaxComponents > 0 {
			opts = append(opts, functions.WithMaxComponents(cfg.Functions.MaxComponents))
		}
		return functions.New(logger, opts...), nil

	case compute.Type:
		backend, err := compute.NewBackend(cfg.Compute, logger)
		if err != nil {
			return nil, fmt.Errorf("compute backend: %w", err)
		}
		return compute.New(backend, logger), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", resourceType)
	}
}
