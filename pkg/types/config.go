// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Default thresholds and budgets.
const (
	DefaultEssentialThreshold = 0.8
	DefaultOptionalThreshold  = 0.5
	DefaultBackupAccept       = 0.6
	DefaultConfirmThreshold   = 0.6
	DefaultEventDuration      = time.Hour
	DefaultEnhancementTimeout = 4 * time.Second
	DefaultCacheTTL           = 24 * time.Hour
)

// PipelineConfig holds routing thresholds and derivation defaults.
type PipelineConfig struct {
	// EssentialThreshold is the confidence at which title, start and end
	// exit the pipeline (default 0.8).
	EssentialThreshold float64 `json:"essential_threshold" yaml:"essential_threshold" mapstructure:"essential_threshold"`

	// OptionalThreshold is the looser bar for location, description,
	// recurrence and participants (default 0.5).
	OptionalThreshold float64 `json:"optional_threshold" yaml:"optional_threshold" mapstructure:"optional_threshold"`

	// BackupAccept is the minimum confidence a deterministic backup result
	// needs to resolve a field (default 0.6).
	BackupAccept float64 `json:"backup_accept" yaml:"backup_accept" mapstructure:"backup_accept"`

	// ConfirmThreshold flags needs_confirmation below it (default 0.6).
	ConfirmThreshold float64 `json:"confirm_threshold" yaml:"confirm_threshold" mapstructure:"confirm_threshold"`

	// DefaultDuration is applied when a start is known but no end,
	// range or duration was found (default 1h).
	DefaultDuration time.Duration `json:"default_duration" yaml:"default_duration" mapstructure:"default_duration"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.EssentialThreshold <= 0 {
		c.EssentialThreshold = DefaultEssentialThreshold
	}
	if c.OptionalThreshold <= 0 {
		c.OptionalThreshold = DefaultOptionalThreshold
	}
	if c.BackupAccept <= 0 {
		c.BackupAccept = DefaultBackupAccept
	}
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = DefaultConfirmThreshold
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = DefaultEventDuration
	}
	return c
}

// Threshold returns the exit threshold for a field at the pattern tier.
func (c PipelineConfig) Threshold(f FieldName) float64 {
	if f.Essential() {
		return c.EssentialThreshold
	}
	return c.OptionalThreshold
}

// LLMProvider selects the enhancement backend.
type LLMProvider string

const (
	ProviderNone      LLMProvider = ""
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
)

// AIConfig holds settings shared by Generative AI backends.
type AIConfig struct {
	// Provider selects the backend: anthropic, openai, or empty to disable
	// enhancement.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible servers,
	// tests).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens bounds the response size (default 512).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EnhancementConfig holds settings for the language-model tier.
type EnhancementConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Timeout is the budget for a single attempt (default 4s). One retry
	// is made on timeout or malformed response.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// RequestsPerMinute caps outbound calls (default 60).
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// MaxConfidence caps the confidence assigned to model output (default 0.75).
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence" mapstructure:"max_confidence"`
}

// Enabled reports whether a backend is configured.
func (c EnhancementConfig) Enabled() bool {
	return c.Provider != ProviderNone
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c EnhancementConfig) WithDefaults() EnhancementConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultEnhancementTimeout
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.MaxConfidence <= 0 || c.MaxConfidence > 1 {
		c.MaxConfidence = 0.75
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	return c
}

// CacheBackend selects the cache storage primitive.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheSQLite CacheBackend = "sqlite"
	CacheNone   CacheBackend = "none"
)

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Backend is memory (default), sqlite or none.
	Backend CacheBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// TTL is the entry lifetime (default 24h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// MaxEntries bounds the memory backend (default 10000). Entries past
	// the bound are evicted least recently used first.
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`

	// PurgeSchedule is the cron spec for expired-entry purges in serve mode
	// (default "@hourly").
	PurgeSchedule string `json:"purge_schedule" yaml:"purge_schedule" mapstructure:"purge_schedule"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c CacheConfig) WithDefaults() CacheConfig {
	if c.Backend == "" {
		c.Backend = CacheMemory
	}
	if c.Path == "" {
		c.Path = "eventparse-cache.db"
	}
	if c.TTL <= 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10000
	}
	if c.PurgeSchedule == "" {
		c.PurgeSchedule = "@hourly"
	}
	return c
}

// ServerConfig holds HTTP settings for serve mode.
type ServerConfig struct {
	// Listen is the bind address (default 127.0.0.1:8080).
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`

	// ReadTimeout and WriteTimeout bound each connection.
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`

	// HealthTimeout bounds the LLM probe behind the liveness check (default 2s).
	HealthTimeout time.Duration `json:"health_timeout" yaml:"health_timeout" mapstructure:"health_timeout"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
	return c
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json (default) or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups every section of the configuration file.
type Config struct {
	Pipeline    PipelineConfig    `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Enhancement EnhancementConfig `json:"enhancement" yaml:"enhancement" mapstructure:"enhancement"`
	Cache       CacheConfig       `json:"cache" yaml:"cache" mapstructure:"cache"`
	Server      ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
}

// WithDefaults applies every section's defaults.
func (c Config) WithDefaults() Config {
	c.Pipeline = c.Pipeline.WithDefaults()
	c.Enhancement = c.Enhancement.WithDefaults()
	c.Cache = c.Cache.WithDefaults()
	c.Server = c.Server.WithDefaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	return c
}
