package config

import (
	"github.com/marmos91/stashd/pkg/adapter"
	"github.com/marmos91/stashd/pkg/adapter/stash"
	"github.com/marmos91/stashd/pkg/metrics"
)

// CreateAdapters creates all protocol adapters from the configuration.
//
// This factory function centralizes adapter creation logic and makes it easy to:
//   - Add new protocol adapters
//   - Configure metrics for all adapters
//   - Handle adapter-specific initialization
//
// Parameters:
//   - cfg: The complete stashd configuration
//   - stashMetrics: Metrics collector for the stash adapter (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, stashMetrics metrics.StashMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	stashAdapter := stash.New(stashConfigFrom(cfg), stashMetrics)
	adapters = append(adapters, stashAdapter)

	// Future adapters can be added here:
	// if cfg.Adapters.SFTP.Enabled {
	//     adapters = append(adapters, sftp.New(cfg.Adapters.SFTP))
	// }

	return adapters, nil
}

// stashConfigFrom maps the flat configuration sections onto the stash
// adapter's config.
func stashConfigFrom(cfg *Config) stash.StashConfig {
	return stash.StashConfig{
		Enabled:         true,
		Port:            cfg.Server.Port,
		MaxConnections:  cfg.Server.MaxConnections,
		AcceptRate:      cfg.Server.AcceptRate,
		AcceptBurst:     cfg.Server.AcceptBurst,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowRemoteStop: cfg.Server.AllowRemoteStop,
		ChunkSize:       cfg.Transfer.ChunkSize,
	}
}
