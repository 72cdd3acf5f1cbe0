package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/weld/internal/shell/providers"
	"github.com/artpar/weld/internal/shell/runner"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Log       LogConfig        `mapstructure:"log"`
	Runner    RunnerConfig     `mapstructure:"runner"`
	Providers providers.Config `mapstructure:"providers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RunnerConfig holds composition execution configuration.
type RunnerConfig struct {
	// InitWorkers is the width of the component initialization pool.
	InitWorkers int `mapstructure:"init_workers"`

	// ArtifactPath is where the composition artifact is written when the
	// -out flag is not given.
	ArtifactPath string `mapstructure:"artifact_path"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/weld.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("runner.init_workers", 1)
	v.SetDefault("runner.artifact_path", runner.DefaultArtifactPath)
	v.SetDefault("providers.enabled", []string{})
	v.SetDefault("providers.compute.name", "docker")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("WELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// mergeProviders fills provider settings the manifest leaves unset from the
// application config. Manifest values win.
func mergeProviders(dst *providers.Config, src providers.Config) {
	if len(dst.Enabled) == 0 {
		dst.Enabled = src.Enabled
	}
	if dst.Storage.MaxContainers == 0 {
		dst.Storage.MaxContainers = src.Storage.MaxContainers
	}
	if dst.Functions.MaxComponents == 0 {
		dst.Functions.MaxComponents = src.Functions.MaxComponents
	}
	if dst.Compute.Name == "" {
		dst.Compute.Name = src.Compute.Name
	}
	if dst.Compute.AccessKeyID == "" {
		dst.Compute.AccessKeyID = src.Compute.AccessKeyID
	}
	if dst.Compute.SecretAccessKey == "" {
		dst.Compute.SecretAccessKey = src.Compute.SecretAccessKey
	}
	if dst.Compute.APIToken == "" {
		dst.Compute.APIToken = src.Compute.APIToken
	}
	if dst.Compute.DockerHost == "" {
		dst.Compute.DockerHost = src.Compute.DockerHost
	}
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
