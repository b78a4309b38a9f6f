package config

import (
	"github.com/marmos91/stashd/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// StashMetrics is the metrics collector for the stash adapter
	// (never nil, uses noop if disabled)
	StashMetrics metrics.StashMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Parameters:
//   - cfg: The complete stashd configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		// Metrics disabled - NewStashMetrics returns the no-op
		// implementation while the global registry is uninitialized
		return &MetricsResult{
			Server:       nil,
			StashMetrics: metrics.NewStashMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	// Create metrics HTTP server
	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	// Create Prometheus-backed metrics for the stash adapter
	stashMetrics := metrics.NewStashMetrics()

	return &MetricsResult{
		Server:       server,
		StashMetrics: stashMetrics,
	}
}
