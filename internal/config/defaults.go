package config

import (
	"github.com/spf13/viper"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/fetcher"
	"github.com/crawlpace/crawlpace/internal/core/robots"
)

// setDefaults registers every key so environment variables resolve even
// when no config file sets them.
func setDefaults(v *viper.Viper) {
	// Pacing
	v.SetDefault("pacing.default_rate_limit", engine.DefaultRate)
	v.SetDefault("pacing.burst_multiplier", engine.DefaultBurstMultiplier)
	v.SetDefault("pacing.domain_key", string(core.KeyHost))
	v.SetDefault("pacing.overrides", []any{})

	// Backoff
	v.SetDefault("backoff.base_delay", engine.DefaultBaseDelay)
	v.SetDefault("backoff.max_delay", engine.DefaultMaxDelay)
	v.SetDefault("backoff.max_retries", engine.DefaultMaxRetries)

	// Adaptive
	v.SetDefault("adaptive.enabled", false)
	v.SetDefault("adaptive.target_concurrency", engine.DefaultTargetConcurrency)
	v.SetDefault("adaptive.start_delay", engine.DefaultAdaptiveStart)
	v.SetDefault("adaptive.min_delay", 0)
	v.SetDefault("adaptive.max_delay", engine.DefaultAdaptiveMax)
	v.SetDefault("adaptive.window", engine.DefaultLatencyWindow)

	// Robots
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.user_agent", robots.DefaultUserAgent)
	v.SetDefault("robots.cache_ttl", robots.DefaultTTL)
	v.SetDefault("robots.fetch_timeout", robots.DefaultFetchTimeout)
	v.SetDefault("robots.max_body_bytes", robots.DefaultMaxBodyBytes)

	// Detector
	v.SetDefault("detector.status_codes", engine.DefaultStatusCodes)
	v.SetDefault("detector.domain_status_codes", []any{})
	v.SetDefault("detector.body_phrases", engine.DefaultBodyPhrases)
	v.SetDefault("detector.vendor_markers", engine.DefaultVendorMarkers)
	v.SetDefault("detector.body_prefix_bytes", engine.DefaultBodyPrefix)

	// Fetch
	v.SetDefault("fetch.timeout", fetcher.DefaultTimeout)
	v.SetDefault("fetch.user_agent", robots.DefaultUserAgent)
	v.SetDefault("fetch.concurrency", engine.DefaultConcurrency)
	v.SetDefault("fetch.max_body_bytes", fetcher.DefaultMaxBodyBytes)

	// Store
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.record_events", false)

	// Server
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_jobs", 100)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Metrics and health
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)

	// Debug
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}
