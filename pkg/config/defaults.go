package config

import (
	"time"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// Default values applied to unset configuration fields.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "text"
	DefaultLogOutput       = "stdout"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsListen   = ":9464"
)

// ApplyDefaults fills in defaults for any unset values.
//
// Called after unmarshaling and before validation, so a minimal (or
// missing) config file still produces a runnable configuration.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}

	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Cache.EvictionSize == 0 {
		cfg.Cache.EvictionSize = vfs.EvictionCacheSize
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}

	// Auto-assign registry indexes for drivers that did not pick one,
	// spacing them by two so file-like children (index+1) never collide.
	next := uint64(2)
	taken := make(map[uint64]bool)
	for _, driver := range cfg.Drivers {
		if driver.Index != 0 {
			taken[driver.Index] = true
		}
	}
	for i := range cfg.Drivers {
		if cfg.Drivers[i].Index != 0 {
			continue
		}
		for taken[next] || taken[next+1] {
			next += 2
		}
		cfg.Drivers[i].Index = next
		taken[next] = true
		taken[next+1] = true
	}
}
