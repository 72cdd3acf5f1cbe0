package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/artpar/weld/internal/shell/manifest"
	"github.com/artpar/weld/internal/shell/runner"
	"github.com/artpar/weld/internal/shell/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitRunFailed   = 1
	ExitConfigError = 2
	ExitStoreError  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	manifestPath := flag.String("manifest", "weld.yaml", "Path to the composition manifest")
	serve := flag.Bool("serve", false, "Serve the run inspection API instead of executing a composition")
	outPath := flag.String("out", "", "Composition artifact path (default weld.out.yaml)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("weld %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg)
	logger.Info("starting weld",
		"version", Version,
		"config", *configPath,
	)

	if *serve {
		server, err := NewServer(cfg, logger)
		if err != nil {
			var sErr *ServerError
			if errors.As(err, &sErr) {
				logger.Error("failed to create server", "error", sErr.Err, "operation", sErr.Op)
				return sErr.ExitCode
			}
			logger.Error("failed to create server", "error", err)
			return ExitConfigError
		}

		if err := server.Start(context.Background()); err != nil {
			var sErr *ServerError
			if errors.As(err, &sErr) {
				logger.Error("server error", "error", sErr.Err, "operation", sErr.Op)
				return sErr.ExitCode
			}
			logger.Error("server error", "error", err)
			return ExitRunFailed
		}
		return ExitSuccess
	}

	return runComposition(cfg, logger, *manifestPath, *outPath)
}

// runComposition executes one manifest end to end and writes the artifact.
func runComposition(cfg *Config, logger *slog.Logger, manifestPath, outPath string) int {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		logger.Error("failed to load manifest", "path", manifestPath, "error", err)
		return ExitConfigError
	}
	mergeProviders(&m.Providers, cfg.Providers)

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open store", "dsn", cfg.Database.DSN, "error", err)
		return ExitStoreError
	}
	defer s.Close()

	r := runner.New(s, logger, runner.WithInitWorkers(cfg.Runner.InitWorkers))

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		var storeErr *store.StoreError
		if errors.As(err, &storeErr) {
			logger.Error("failed to persist run", "error", err)
			return ExitStoreError
		}
		logger.Error("failed to set up run", "error", err)
		return ExitConfigError
	}

	if outPath == "" {
		outPath = cfg.Runner.ArtifactPath
	}
	if err := runner.WriteArtifact(outPath, result.Report); err != nil {
		logger.Error("failed to write artifact", "path", outPath, "error", err)
		return ExitStoreError
	}
	logger.Info("artifact written", "path", outPath)

	if result.Err != nil {
		return ExitRunFailed
	}
	return ExitSuccess
}
