package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the complete stashd configuration.
//
// This structure captures all configurable aspects of the stashd server:
//   - Logging configuration
//   - Server-wide settings (listener, root directory, limits, timeouts)
//   - Transfer tuning
//   - Metrics exposure
//
// Configuration sources (in order of precedence):
//  1. Environment variables (STASHD_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains listener and file-serving settings
	Server ServerConfig `mapstructure:"server"`

	// Transfer contains data-phase tuning
	Transfer TransferConfig `mapstructure:"transfer"`

	// Metrics controls the Prometheus metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains listener and file-serving settings.
type ServerConfig struct {
	// Port is the TCP port clients connect to
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// RootDir is the directory served to clients.
	// Created on startup if missing. All remote paths resolve inside it.
	RootDir string `mapstructure:"root_dir" validate:"required"`

	// MaxConnections limits concurrent client connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// MaxLockedPaths bounds how many distinct paths may be locked at once.
	// Requests beyond the bound are answered with a busy error.
	MaxLockedPaths int `mapstructure:"max_locked_paths" validate:"min=0"`

	// AllowRemoteStop controls whether the STOP command shuts the server
	// down. Defaults to true; set false on networks where remote shutdown
	// is considered hostile.
	AllowRemoteStop bool `mapstructure:"allow_remote_stop"`

	// AcceptRate throttles accepted connections per second (0 = no throttle)
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the burst allowance for AcceptRate.
	// Ignored when AcceptRate is 0.
	AcceptBurst uint `mapstructure:"accept_burst"`

	// ReadTimeout is the per-read deadline during a transfer
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout is the per-write deadline during a transfer
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout is how long an accepted connection may wait before
	// issuing its command
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time graceful shutdown waits for
	// running transfers
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// TransferConfig contains data-phase tuning.
type TransferConfig struct {
	// ChunkSize is the streaming buffer size in bytes
	ChunkSize int `mapstructure:"chunk_size" validate:"min=0"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics HTTP server on
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics HTTP port
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STASHD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use STASHD_ prefix and underscores
	// Example: STASHD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("STASHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults that cannot live in ApplyDefaults: after unmarshalling, an
	// explicit false or 0 is indistinguishable from an absent key, and for
	// these two the explicit value means something (STOP disabled,
	// unlimited connections).
	v.SetDefault("server.allow_remote_stop", true)
	v.SetDefault("server.max_connections", 100)

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/stashd/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		if configPath != "" && os.IsNotExist(err) {
			// Explicit path that does not exist - also acceptable
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stashd")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "stashd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
