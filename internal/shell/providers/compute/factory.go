package compute

import (
	"fmt"
	"log/slog"
)

// BackendConfig selects and credentials one instance backend.
type BackendConfig struct {
	// Name is one of "aws", "digitalocean", "hetzner", "docker".
	Name string `mapstructure:"name" yaml:"name"`

	// AWS credentials.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// API token for DigitalOcean and Hetzner.
	APIToken string `mapstructure:"api_token" yaml:"api_token"`

	// Docker daemon host override.
	DockerHost string `mapstructure:"docker_host" yaml:"docker_host"`
}

// NewBackend creates the instance backend named in the config.
func NewBackend(cfg BackendConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Name {
	case "aws":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("aws backend requires access_key_id and secret_access_key")
		}
		return NewAWSBackend(cfg.AccessKeyID, cfg.SecretAccessKey, logger), nil

	case "digitalocean":
		if cfg.APIToken == "" {
			return nil, fmt.Errorf("digitalocean backend requires api_token")
		}
		return NewDigitalOceanBackend(cfg.APIToken, logger), nil

	case "hetzner":
		if cfg.APIToken == "" {
			return nil, fmt.Errorf("hetzner backend requires api_token")
		}
		return NewHetznerBackend(cfg.APIToken, logger), nil

	case "docker", "":
		return NewDockerBackend(cfg.DockerHost, logger)

	default:
		return nil, fmt.Errorf("unsupported compute backend: %s", cfg.Name)
	}
}
