// Package config loads, validates and materializes the corvfs
// configuration: logging, metrics, the eviction cache, driver instances
// and the mount table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete corvfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CORVFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Driver Configuration Pattern:
// Each driver type defines its own option set. The Options map carries
// the type-specific section verbatim; the factory for the selected type
// decodes it (see factories.go).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Cache configures the node eviction cache
	Cache CacheConfig `mapstructure:"cache"`

	// Metrics configures Prometheus metrics exposure
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Drivers declares the backing-store driver instances
	Drivers []DriverConfig `mapstructure:"drivers" validate:"dive"`

	// Mounts declares which driver is mounted where
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// CacheConfig configures the node eviction cache.
type CacheConfig struct {
	// EvictionSize is the capacity of the eviction ring.
	// 0 selects the built-in default (1024).
	EvictionSize int `mapstructure:"eviction_size" validate:"gte=0"`
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	// Enabled turns metrics collection on
	Enabled bool `mapstructure:"enabled"`

	// Listen is the address of the /metrics HTTP endpoint
	// Only used when Enabled is true
	Listen string `mapstructure:"listen"`
}

// DriverConfig declares one driver instance.
type DriverConfig struct {
	// Name is the unique identifier mounts refer to
	Name string `mapstructure:"name" validate:"required"`

	// Type selects the implementation
	// Valid values: memory, badger, s3, dev, fifo
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3 dev fifo"`

	// Index is the registry index the driver is registered at.
	// Indexes must not collide within a group; leave gaps of at least
	// two, since file-like children of a mount resolve to index+1.
	Index uint64 `mapstructure:"index"`

	// Options carries the type-specific configuration section
	Options map[string]any `mapstructure:"options"`
}

// MountConfig declares one mount.
type MountConfig struct {
	// Path is the absolute mountpoint path (e.g. "/mnt/data")
	Path string `mapstructure:"path" validate:"required,startswith=/"`

	// Driver is the name of the driver instance to mount
	Driver string `mapstructure:"driver" validate:"required"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CORVFS_ prefix and underscores.
	// Example: CORVFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CORVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "corvfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "corvfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
