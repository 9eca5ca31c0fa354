// Package config loads configuration for the analysis execution core.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete core configuration.
type Config struct {
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Execution ExecutionConfig `json:"execution" mapstructure:"execution"`
	Chunking  ChunkingConfig  `json:"chunking" mapstructure:"chunking"`
	History   HistoryConfig   `json:"history" mapstructure:"history"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// CacheConfig selects and tunes the cache/lock backend.
type CacheConfig struct {
	// Mode is "auto", "redis", or "local". In auto mode the shared backend
	// is probed at startup and the process-local store is used on failure.
	Mode             string `json:"mode" mapstructure:"mode"`
	RedisAddr        string `json:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword    string `json:"redisPassword" mapstructure:"redisPassword"`
	RedisDB          int    `json:"redisDb" mapstructure:"redisDb"`
	ProbeTimeoutMs   int    `json:"probeTimeoutMs" mapstructure:"probeTimeoutMs"`
	CompressMinBytes int    `json:"compressMinBytes" mapstructure:"compressMinBytes"`
}

// ExecutionConfig tunes the job idempotency coordinator.
type ExecutionConfig struct {
	LockTimeoutSeconds       int `json:"lockTimeoutSeconds" mapstructure:"lockTimeoutSeconds"`
	SuppressionWindowSeconds int `json:"suppressionWindowSeconds" mapstructure:"suppressionWindowSeconds"`
	RetentionHours           int `json:"retentionHours" mapstructure:"retentionHours"`
}

// ChunkingConfig tunes payload estimation and the chunk pipeline.
type ChunkingConfig struct {
	CharsPerToken       int `json:"charsPerToken" mapstructure:"charsPerToken"`
	MaxTokensPerChunk   int `json:"maxTokensPerChunk" mapstructure:"maxTokensPerChunk"`
	MaxConcurrentChunks int `json:"maxConcurrentChunks" mapstructure:"maxConcurrentChunks"`
}

// HistoryConfig tunes the durable execution history store.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Mode:             "auto",
			RedisAddr:        "localhost:6379",
			RedisDB:          0,
			ProbeTimeoutMs:   2000,
			CompressMinBytes: 8192,
		},
		Execution: ExecutionConfig{
			LockTimeoutSeconds:       1800,
			SuppressionWindowSeconds: 60,
			RetentionHours:           24,
		},
		Chunking: ChunkingConfig{
			CharsPerToken:       4,
			MaxTokensPerChunk:   12000,
			MaxConcurrentChunks: 3,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".reviewcore/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given file (optional) plus REVIEWCORE_*
// environment overrides, layered over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("REVIEWCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("cache.mode", d.Cache.Mode)
	v.SetDefault("cache.redisAddr", d.Cache.RedisAddr)
	v.SetDefault("cache.redisDb", d.Cache.RedisDB)
	v.SetDefault("cache.probeTimeoutMs", d.Cache.ProbeTimeoutMs)
	v.SetDefault("cache.compressMinBytes", d.Cache.CompressMinBytes)
	v.SetDefault("execution.lockTimeoutSeconds", d.Execution.LockTimeoutSeconds)
	v.SetDefault("execution.suppressionWindowSeconds", d.Execution.SuppressionWindowSeconds)
	v.SetDefault("execution.retentionHours", d.Execution.RetentionHours)
	v.SetDefault("chunking.charsPerToken", d.Chunking.CharsPerToken)
	v.SetDefault("chunking.maxTokensPerChunk", d.Chunking.MaxTokensPerChunk)
	v.SetDefault("chunking.maxConcurrentChunks", d.Chunking.MaxConcurrentChunks)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Cache.Mode {
	case "auto", "redis", "local":
	default:
		return fmt.Errorf("invalid cache.mode %q (valid: auto, redis, local)", c.Cache.Mode)
	}
	if c.Chunking.CharsPerToken <= 0 {
		return fmt.Errorf("chunking.charsPerToken must be positive, got %d", c.Chunking.CharsPerToken)
	}
	if c.Chunking.MaxTokensPerChunk <= 0 {
		return fmt.Errorf("chunking.maxTokensPerChunk must be positive, got %d", c.Chunking.MaxTokensPerChunk)
	}
	if c.Chunking.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("chunking.maxConcurrentChunks must be positive, got %d", c.Chunking.MaxConcurrentChunks)
	}
	if c.Execution.LockTimeoutSeconds <= 0 {
		return fmt.Errorf("execution.lockTimeoutSeconds must be positive, got %d", c.Execution.LockTimeoutSeconds)
	}
	if c.Execution.SuppressionWindowSeconds < 0 {
		return fmt.Errorf("execution.suppressionWindowSeconds must not be negative, got %d", c.Execution.SuppressionWindowSeconds)
	}
	return nil
}

// LockTimeout returns the default lock timeout as a duration.
func (c *ExecutionConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// SuppressionWindow returns the completed-job suppression window as a duration.
func (c *ExecutionConfig) SuppressionWindow() time.Duration {
	return time.Duration(c.SuppressionWindowSeconds) * time.Second
}

// Retention returns the cleanup retention horizon as a duration.
func (c *ExecutionConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// MaxChunkChars returns the chunk budget in characters.
func (c *ChunkingConfig) MaxChunkChars() int {
	return c.CharsPerToken * c.MaxTokensPerChunk
}

// ProbeTimeout returns the backend probe timeout as a duration.
func (c *CacheConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}
