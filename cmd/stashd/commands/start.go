package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/stashd/internal/logger"
	"github.com/marmos91/stashd/pkg/config"
	"github.com/marmos91/stashd/pkg/server"
	"github.com/spf13/cobra"
)

var (
	startPort int
	startRoot string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the stashd server",
	Long: `Start the stashd server with the specified configuration.

The server runs in the foreground until it receives SIGINT or SIGTERM, or
until a client issues a STOP command (when allow_remote_stop is enabled).

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/stashd/config.yaml. Without a config
file the server runs on built-in defaults.

Examples:
  # Start with default config location (or defaults when none exists)
  stashd start

  # Start with custom config file
  stashd start --config /etc/stashd/config.yaml

  # Override the listening port and served directory
  stashd start --port 2100 --root /srv/stash

  # Start with environment variable overrides
  STASHD_LOGGING_LEVEL=DEBUG stashd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "Listening port (overrides config)")
	startCmd.Flags().StringVar(&startRoot, "root", "", "Directory to serve (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply command-line overrides and re-validate
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = startPort
	}
	if cmd.Flags().Changed("root") {
		cfg.Server.RootDir = startRoot
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("Stashd - Remote file stash server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics first so the collectors are live before the store
	// and adapters that record into them are created
	metricsResult := config.InitializeMetrics(cfg)

	// Initialize registry with the file store and lock table
	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	logger.Info("Registry initialized",
		"root", cfg.Server.RootDir,
		"max_locked_paths", cfg.Server.MaxLockedPaths)

	srv := server.New(reg)

	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		srv.SetMetricsServer(metricsResult.Server)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Create all enabled adapters using the factory
	adapters, err := config.CreateAdapters(cfg, metricsResult.StashMetrics)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}

	// Add all adapters to the server
	for _, adp := range adapters {
		if err := srv.AddAdapter(adp); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", adp.Protocol(), err)
		}
		logger.Info("Adapter enabled", "protocol", adp.Protocol(), "port", adp.Port())
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Wait for interrupt signal or server exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		// Serve returns context.Canceled after a client STOP drained the
		// server; that is a clean exit, not a failure
		signal.Stop(sigChan)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.ConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
