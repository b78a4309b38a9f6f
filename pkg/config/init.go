package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configTemplate is the commented starter configuration written by
// InitConfig. Values are filled in from GetDefaultConfig so the generated
// file and the compiled-in defaults cannot drift apart.
const configTemplate = `# Stashd Configuration File
#
# Generated by 'stashd init'. Values shown are the defaults.
# Environment variables (STASHD_*) override file values,
# e.g. STASHD_SERVER_PORT=2100.

logging:
  # Log level: DEBUG, INFO, WARN or ERROR
  level: %s
  # Log format: text or json
  format: %s
  # Log destination: stdout, stderr or a file path
  output: %s

server:
  # TCP port for client connections
  port: %d
  # Directory served to clients; created on startup if missing
  root_dir: %s
  # Maximum concurrent client connections (0 = unlimited)
  max_connections: %d
  # Maximum distinct paths locked at once; requests beyond the bound
  # are answered with a busy error
  max_locked_paths: %d
  # Honor the STOP command (set false on hostile networks)
  allow_remote_stop: %t
  # Accepted connections per second (0 = no throttle)
  accept_rate: %d
  # Per-read deadline during a transfer
  read_timeout: %s
  # Per-write deadline during a transfer
  write_timeout: %s
  # How long an accepted connection may idle before issuing its command
  idle_timeout: %s
  # How long graceful shutdown waits for running transfers
  shutdown_timeout: %s

transfer:
  # Data-phase buffer size in bytes
  chunk_size: %d

metrics:
  # Expose Prometheus metrics over HTTP
  enabled: %t
  # Metrics HTTP port
  port: %d
`

// InitConfig writes a commented starter configuration file to the default
// location ($XDG_CONFIG_HOME/stashd/config.yaml or ~/.config/stashd/config.yaml).
//
// Returns the path the file was written to.
//
// Fails if the file already exists, unless force is true.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()

	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}

	return configPath, nil
}

// InitConfigToPath writes a commented starter configuration file to the
// given path, creating parent directories as needed.
//
// Fails if the file already exists, unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders the commented configuration template
// from the given config and verifies the result parses as YAML.
func generateYAMLWithComments(cfg *Config) (string, error) {
	content := fmt.Sprintf(configTemplate,
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Server.Port,
		cfg.Server.RootDir,
		cfg.Server.MaxConnections,
		cfg.Server.MaxLockedPaths,
		cfg.Server.AllowRemoteStop,
		cfg.Server.AcceptRate,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		cfg.Server.IdleTimeout,
		cfg.Server.ShutdownTimeout,
		cfg.Transfer.ChunkSize,
		cfg.Metrics.Enabled,
		cfg.Metrics.Port,
	)

	// Guard against template edits producing an unparseable file
	var check map[string]any
	if err := yaml.Unmarshal([]byte(content), &check); err != nil {
		return "", fmt.Errorf("generated config is not valid YAML: %w", err)
	}

	return content, nil
}
