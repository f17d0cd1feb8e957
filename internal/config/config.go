// Package config provides configuration management for reelforge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort           = 8080
	defaultServerTimeout        = 30 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultMaxOpenConns         = 25
	defaultMaxIdleConns         = 10
	defaultConnMaxIdleTime      = 30 * time.Minute
	defaultMinDuration          = 5
	defaultMaxDuration          = 120
	defaultSegmentDuration      = 12
	defaultShortSegmentDuration = 5
	defaultMaxSegmentRetries    = 3
	defaultMaxConcurrentJobs    = 1
	defaultPollingInterval      = 10 * time.Second
	defaultSegmentTimeout       = 15 * time.Minute
	defaultVideoTimeout         = 30 * time.Minute
	defaultLockTimeout          = 30 * time.Minute
	defaultFadeDuration         = 0.5
	defaultCacheTTL             = 7 * 24 * time.Hour
	defaultCacheHashLength      = 32
	defaultCacheCleanupEvery    = 24 * time.Hour
	defaultProviderTimeout      = 2 * time.Minute
	defaultGenerationWidth      = 1920
	defaultGenerationHeight     = 1080
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Providers ProvidersConfig `mapstructure:"providers"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// PublicBaseURL is the externally visible base URL used when mapping
	// stored artifacts to URLs (e.g. "https://reelforge.example.com").
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// BaseDir is the storage root; videos, cache, and temp trees live under it.
	BaseDir string `mapstructure:"base_dir"`
	// CacheTTL is how long cached segments remain valid.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// CacheHashLength is the hex-character length of truncated cache keys.
	CacheHashLength int `mapstructure:"cache_hash_length"`
	// CacheCleanupInterval is the minimum interval between cache cleanup passes.
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PipelineConfig holds the processing pipeline configuration.
type PipelineConfig struct {
	MinDuration       int           `mapstructure:"min_duration"`        // seconds, lower validation bound
	MaxDuration       int           `mapstructure:"max_duration"`        // seconds, upper validation bound
	SegmentDuration   int           `mapstructure:"segment_duration"`    // nominal seconds per segment
	MaxSegmentRetries int           `mapstructure:"max_segment_retries"` // per-segment retry cap
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"` // parallel-mode upper bound
	PollingInterval   time.Duration `mapstructure:"polling_interval"`    // generation poll cadence
	SegmentTimeout    time.Duration `mapstructure:"segment_timeout"`     // wall clock per segment
	VideoTimeout      time.Duration `mapstructure:"video_timeout"`       // wall clock per run
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`        // processing lock expiry
	FadeDuration      float64       `mapstructure:"fade_duration"`       // crossfade seconds
	GenerationWidth   int           `mapstructure:"generation_width"`
	GenerationHeight  int           `mapstructure:"generation_height"`
}

// ProvidersConfig holds configuration for the three external providers.
type ProvidersConfig struct {
	Storyboard StoryboardProviderConfig `mapstructure:"storyboard"`
	VideoGen   VideoGenProviderConfig   `mapstructure:"videogen"`
	Narration  NarrationProviderConfig  `mapstructure:"narration"`
}

// StoryboardProviderConfig configures the LLM used for prompt enhancement,
// scene decomposition, and narration script writing.
type StoryboardProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VideoGenProviderConfig configures the text-to-video generation API.
type VideoGenProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NarrationProviderConfig configures the text-to-speech API.
type NarrationProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	DefaultVoice string        `mapstructure:"default_voice"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = use PATH)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = use PATH)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with REELFORGE_ and use underscores for
// nesting. Example: REELFORGE_PIPELINE_SEGMENT_DURATION=12.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/reelforge")
		v.AddConfigPath("$HOME/.reelforge")
	}

	v.SetEnvPrefix("REELFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.public_base_url", "")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "reelforge.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.cache_ttl", defaultCacheTTL)
	v.SetDefault("storage.cache_hash_length", defaultCacheHashLength)
	v.SetDefault("storage.cache_cleanup_interval", defaultCacheCleanupEvery)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Pipeline defaults
	v.SetDefault("pipeline.min_duration", defaultMinDuration)
	v.SetDefault("pipeline.max_duration", defaultMaxDuration)
	v.SetDefault("pipeline.segment_duration", defaultSegmentDuration)
	v.SetDefault("pipeline.max_segment_retries", defaultMaxSegmentRetries)
	v.SetDefault("pipeline.max_concurrent_jobs", defaultMaxConcurrentJobs)
	v.SetDefault("pipeline.polling_interval", defaultPollingInterval)
	v.SetDefault("pipeline.segment_timeout", defaultSegmentTimeout)
	v.SetDefault("pipeline.video_timeout", defaultVideoTimeout)
	v.SetDefault("pipeline.lock_timeout", defaultLockTimeout)
	v.SetDefault("pipeline.fade_duration", defaultFadeDuration)
	v.SetDefault("pipeline.generation_width", defaultGenerationWidth)
	v.SetDefault("pipeline.generation_height", defaultGenerationHeight)

	// Provider defaults
	v.SetDefault("providers.storyboard.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.storyboard.api_key", "")
	v.SetDefault("providers.storyboard.model", "gpt-4o")
	v.SetDefault("providers.storyboard.timeout", defaultProviderTimeout)
	v.SetDefault("providers.videogen.base_url", "")
	v.SetDefault("providers.videogen.api_key", "")
	v.SetDefault("providers.videogen.model", "")
	v.SetDefault("providers.videogen.timeout", defaultProviderTimeout)
	v.SetDefault("providers.narration.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("providers.narration.api_key", "")
	v.SetDefault("providers.narration.model", "eleven_multilingual_v2")
	v.SetDefault("providers.narration.default_voice", "")
	v.SetDefault("providers.narration.timeout", defaultProviderTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.CacheHashLength < 8 || c.Storage.CacheHashLength > 64 {
		return fmt.Errorf("storage.cache_hash_length must be between 8 and 64")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Pipeline validation
	if c.Pipeline.MinDuration < 1 {
		return fmt.Errorf("pipeline.min_duration must be at least 1")
	}
	if c.Pipeline.MaxDuration < c.Pipeline.MinDuration {
		return fmt.Errorf("pipeline.max_duration must be >= pipeline.min_duration")
	}
	if c.Pipeline.SegmentDuration < 1 {
		return fmt.Errorf("pipeline.segment_duration must be at least 1")
	}
	if c.Pipeline.MaxSegmentRetries < 0 {
		return fmt.Errorf("pipeline.max_segment_retries must not be negative")
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return fmt.Errorf("pipeline.max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.FadeDuration < 0 || c.Pipeline.FadeDuration >= float64(c.Pipeline.SegmentDuration) {
		return fmt.Errorf("pipeline.fade_duration must be in [0, segment_duration)")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SegmentDurationFor returns the segment duration to use for a target
// duration. Five-second videos use a single five-second segment.
func (c *PipelineConfig) SegmentDurationFor(targetDuration int) int {
	if targetDuration == defaultShortSegmentDuration {
		return defaultShortSegmentDuration
	}
	return c.SegmentDuration
}

// SegmentCountFor returns ceil(targetDuration / segmentDuration).
func (c *PipelineConfig) SegmentCountFor(targetDuration int) int {
	seg := c.SegmentDurationFor(targetDuration)
	return (targetDuration + seg - 1) / seg
}
