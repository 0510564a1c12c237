package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/vfs"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Point the default config location at an empty directory so the
	// load falls through to pure defaults.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, vfs.EvictionCacheSize, cfg.Cache.EvictionSize)
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
logging:
  level: DEBUG
  format: json
  output: stderr
server:
  shutdown_timeout: 10s
cache:
  eviction_size: 64
metrics:
  enabled: true
drivers:
  - name: scratch
    type: memory
  - name: store
    type: badger
    options:
      in_memory: true
mounts:
  - path: /scratch
    driver: scratch
  - path: /store
    driver: store
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 64, cfg.Cache.EvictionSize)
	assert.Equal(t, DefaultMetricsListen, cfg.Metrics.Listen)
	require.Len(t, cfg.Drivers, 2)
	require.Len(t, cfg.Mounts, 2)

	// Auto-assigned indexes are spaced by two and never collide.
	assert.NotZero(t, cfg.Drivers[0].Index)
	assert.NotZero(t, cfg.Drivers[1].Index)
	assert.NotEqual(t, cfg.Drivers[0].Index, cfg.Drivers[1].Index)
	assert.NotEqual(t, cfg.Drivers[0].Index+1, cfg.Drivers[1].Index)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Drivers: []DriverConfig{{Name: "m", Type: "memory", Index: 2}},
			Mounts:  []MountConfig{{Path: "/m", Driver: "m"}},
		}
		ApplyDefaults(cfg)
		return cfg
	}

	t.Run("valid baseline", func(t *testing.T) {
		assert.NoError(t, Validate(base()))
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "LOUD"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown driver type", func(t *testing.T) {
		cfg := base()
		cfg.Drivers[0].Type = "floppy"
		assert.Error(t, Validate(cfg))
	})

	t.Run("relative mount path", func(t *testing.T) {
		cfg := base()
		cfg.Mounts[0].Path = "m"
		assert.Error(t, Validate(cfg))
	})

	t.Run("mount references unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.Mounts[0].Driver = "ghost"
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate driver names", func(t *testing.T) {
		cfg := base()
		cfg.Drivers = append(cfg.Drivers, DriverConfig{Name: "m", Type: "memory", Index: 8})
		assert.Error(t, Validate(cfg))
	})

	t.Run("index collision", func(t *testing.T) {
		cfg := base()
		cfg.Drivers = append(cfg.Drivers, DriverConfig{Name: "n", Type: "memory", Index: 3})
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate mount paths", func(t *testing.T) {
		cfg := base()
		cfg.Mounts = append(cfg.Mounts, MountConfig{Path: "/m", Driver: "m"})
		assert.Error(t, Validate(cfg))
	})
}
