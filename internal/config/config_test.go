package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data", cfg.Storage.BaseDir)
	assert.Equal(t, 12, cfg.Pipeline.SegmentDuration)
	assert.Equal(t, 5, cfg.Pipeline.MinDuration)
	assert.Equal(t, 120, cfg.Pipeline.MaxDuration)
	assert.Equal(t, 32, cfg.Storage.CacheHashLength)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REELFORGE_SERVER_PORT", "9090")
	t.Setenv("REELFORGE_PIPELINE_MAX_CONCURRENT_JOBS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentJobs)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	base := func(t *testing.T) *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"hash too short", func(c *Config) { c.Storage.CacheHashLength = 4 }, "cache_hash_length"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"duration bounds inverted", func(c *Config) { c.Pipeline.MaxDuration = 1 }, "max_duration"},
		{"fade exceeds segment", func(c *Config) { c.Pipeline.FadeDuration = 20 }, "fade_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSegmentDurationFor(t *testing.T) {
	cfg := PipelineConfig{SegmentDuration: 12}

	assert.Equal(t, 5, cfg.SegmentDurationFor(5))
	assert.Equal(t, 12, cfg.SegmentDurationFor(24))
	assert.Equal(t, 12, cfg.SegmentDurationFor(120))
}

func TestSegmentCountFor(t *testing.T) {
	cfg := PipelineConfig{SegmentDuration: 12}

	assert.Equal(t, 1, cfg.SegmentCountFor(5))
	assert.Equal(t, 1, cfg.SegmentCountFor(12))
	assert.Equal(t, 2, cfg.SegmentCountFor(13))
	assert.Equal(t, 5, cfg.SegmentCountFor(60))
	assert.Equal(t, 10, cfg.SegmentCountFor(120))
}

func TestAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}
