package config

import (
	"time"
)

// Config is the complete application configuration. Values are layered as
// defaults, then the optional config file, then CRAWLPACE_* environment
// variables, then runtime overrides.
type Config struct {
	Pacing   PacingConfig   `mapstructure:"pacing" yaml:"pacing"`
	Backoff  BackoffConfig  `mapstructure:"backoff" yaml:"backoff"`
	Adaptive AdaptiveConfig `mapstructure:"adaptive" yaml:"adaptive"`
	Robots   RobotsConfig   `mapstructure:"robots" yaml:"robots"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Health   HealthConfig   `mapstructure:"health" yaml:"health"`
	Debug    DebugConfig    `mapstructure:"debug" yaml:"debug"`
}

// PacingConfig controls per-domain admission.
type PacingConfig struct {
	// DefaultRateLimit is requests per second for domains without an override.
	DefaultRateLimit float64 `mapstructure:"default_rate_limit" yaml:"default_rate_limit"`
	// BurstMultiplier sets bucket capacity as ceil(rate * multiplier).
	BurstMultiplier float64 `mapstructure:"burst_multiplier" yaml:"burst_multiplier"`
	// DomainKey is "host" or "registrable".
	DomainKey string           `mapstructure:"domain_key" yaml:"domain_key"`
	Overrides []DomainOverride `mapstructure:"overrides" yaml:"overrides,omitempty"`
}

// DomainOverride pins a rate (and optionally a burst) for one domain.
// Overrides are a list rather than a map so dotted host names survive key
// splitting in the loader.
type DomainOverride struct {
	Domain string  `mapstructure:"domain" yaml:"domain"`
	Rate   float64 `mapstructure:"rate" yaml:"rate"`
	Burst  int     `mapstructure:"burst" yaml:"burst,omitempty"`
}

// BackoffConfig controls retry delays for rate-limited responses.
type BackoffConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// AdaptiveConfig controls the latency-driven throttler.
type AdaptiveConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	TargetConcurrency float64       `mapstructure:"target_concurrency" yaml:"target_concurrency"`
	StartDelay        time.Duration `mapstructure:"start_delay" yaml:"start_delay"`
	MinDelay          time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Window            int           `mapstructure:"window" yaml:"window"`
}

// RobotsConfig controls robots.txt handling.
type RobotsConfig struct {
	Respect      bool          `mapstructure:"respect" yaml:"respect"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// DetectorConfig controls rate-limit signal detection.
type DetectorConfig struct {
	StatusCodes       []int               `mapstructure:"status_codes" yaml:"status_codes"`
	DomainStatusCodes []DomainStatusCodes `mapstructure:"domain_status_codes" yaml:"domain_status_codes,omitempty"`
	BodyPhrases       []string            `mapstructure:"body_phrases" yaml:"body_phrases,omitempty"`
	VendorMarkers     []string            `mapstructure:"vendor_markers" yaml:"vendor_markers,omitempty"`
	BodyPrefixBytes   int                 `mapstructure:"body_prefix_bytes" yaml:"body_prefix_bytes"`
}

// DomainStatusCodes adds throttling statuses for a single domain.
type DomainStatusCodes struct {
	Domain string `mapstructure:"domain" yaml:"domain"`
	Codes  []int  `mapstructure:"codes" yaml:"codes"`
}

// FetchConfig controls the built-in HTTP fetcher and crawl fan-out.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url,omitempty"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
	// RecordEvents persists throttle events and end-of-run snapshots.
	RecordEvents bool `mapstructure:"record_events" yaml:"record_events"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxJobs bounds how many finished crawl jobs are kept for lookup.
	MaxJobs int `mapstructure:"max_jobs" yaml:"max_jobs"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Profile is SIMPLE for CLI use or STRUCTURED for the server.
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Port is the dedicated Prometheus exporter port.
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PprofEnabled mounts /debug/pprof on the API server.
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled" yaml:"pprof_enabled"`
}
