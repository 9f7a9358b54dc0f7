// Package app is the shared entry point of the robobrain binary: it loads
// the configuration, wires the conversation pipeline between the configured
// modules and runs them until shutdown.
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/robobrain/internal/config"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/security"
	"github.com/flemzord/robobrain/internal/telemetry"
)

const telemetryFlushTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.FindFile is used.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run is RunContext bound to SIGINT and SIGTERM.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext loads configuration, starts all modules and blocks until ctx
// is done, then stops them in reverse order.
func RunContext(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		found, err := config.FindFile()
		if err != nil {
			return err
		}
		cfgPath = found
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Secrets found in module configs never reach the logs verbatim.
	redactor := security.NewRedactor()
	redactor.AddLiteral(config.Secrets(cfg)...)
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: params.LogLevel})
	logger := slog.New(security.NewRedactingHandler(inner, redactor))

	version := params.Version
	if version == "" {
		version = "dev"
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("app.version", version)
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService("security.redactor", redactor)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	// The brain is built between LoadModules and Start: provider and memory
	// modules publish their services during Provision, and the gateway,
	// bridge and MCP modules resolve the brain when they start.
	if _, err := wireBrain(application, appCtx, cfg, logger); err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("robobrain started",
		"version", version,
		"commit", params.Commit,
		"config", cfgPath,
		"telemetry", cfg.Telemetry.Enabled(),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	application.Stop()
	logger.Info("shutdown complete")
	return nil
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/robobrain if set, otherwise ~/.local/share/robobrain.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "robobrain")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "robobrain")
}
