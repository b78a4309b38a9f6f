// Package metrics provides Prometheus metrics collection for stashd
// components.
//
// Collection is opt-in. Components receive their metrics through small
// interfaces and fall back to no-op implementations when the global registry
// was never initialized, so a server running without metrics pays nothing.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	stashMetrics := metrics.NewStashMetrics()
//
//	// Or use nil for no-op behavior
//	adapter := stash.New(config, nil) // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the process-wide Prometheus registry. Written once by
	// InitRegistry, read everywhere else.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global Prometheus registry and seeds it with the
// standard process and Go runtime collectors.
//
// Safe to call multiple times; only the first call does anything. Metrics
// constructors called before InitRegistry return no-op implementations, so
// call it ahead of component construction.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
//
// The sync.Once in InitRegistry provides the happens-before edge that makes
// the registry value safe to read from any goroutine.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
