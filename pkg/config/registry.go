package config

import (
	"context"
	"fmt"

	"github.com/marmos91/stashd/internal/logger"
	"github.com/marmos91/stashd/pkg/locks"
	"github.com/marmos91/stashd/pkg/registry"
	"github.com/marmos91/stashd/pkg/store"
)

// InitializeRegistry creates a fully configured Registry from the provided
// configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the file store rooted at cfg.Server.RootDir (the directory is
//     created if missing)
//  2. Creates the lock table bounded by cfg.Server.MaxLockedPaths
//  3. Registers both and validates the registry is complete
//
// The resulting Registry is ready to be shared with the server's adapters.
//
// Parameters:
//   - ctx: Context for cancellation during store setup
//   - cfg: Complete configuration loaded from config file
//
// Returns:
//   - *registry.Registry: Fully initialized registry
//   - error: If the root directory cannot be prepared or registration fails
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	logger.Debug("Initializing registry from configuration")

	st, err := store.New(ctx, cfg.Server.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store at %q: %w", cfg.Server.RootDir, err)
	}
	logger.Debug("File store ready", logger.KeyPath, st.Root())

	tbl := locks.NewTable(cfg.Server.MaxLockedPaths)

	reg := registry.NewRegistry()

	if err := reg.RegisterFileStore(st); err != nil {
		return nil, fmt.Errorf("failed to register file store: %w", err)
	}

	if err := reg.RegisterLockTable(tbl); err != nil {
		return nil, fmt.Errorf("failed to register lock table: %w", err)
	}

	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("registry incomplete: %w", err)
	}

	logger.Debug("Registry initialized",
		"root", st.Root(), "max_locked_paths", cfg.Server.MaxLockedPaths)

	return reg, nil
}
