package metrics

import (
	"strconv"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/observability"
)

// Pacing metric names, exported under the Prometheus namespace.
const (
	CrawlResultsTotal       = "crawl_results_total"
	FetchAttemptsTotal      = "crawl_fetch_attempts_total"
	PacingWaitMs            = "crawl_pacing_wait_ms"
	BackoffWaitMs           = "crawl_backoff_wait_ms"
	FetchLatencyMs          = "crawl_fetch_latency_ms"
	ThrottleDetectionsTotal = "throttle_detections_total"

	AdmissionAcquisitions = "admission_acquisitions"
	AdmissionTokens       = "admission_available_tokens"
	AdaptiveDelaySeconds  = "adaptive_delay_seconds"
	RobotsCacheEntries    = "robots_cache_entries"
	RobotsCacheHits       = "robots_cache_hits"
	RobotsCacheMisses     = "robots_cache_misses"
	RobotsFetchFailures   = "robots_fetch_failures"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordCrawlResult emits counters and timings for one finished URL.
func RecordCrawlResult(result engine.Result) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	_ = sys.Counter(CrawlResultsTotal, 1, map[string]string{"status": string(result.Status)})

	outcome := result.Outcome
	if outcome == nil {
		return
	}
	_ = sys.Counter(FetchAttemptsTotal, float64(outcome.Attempts), map[string]string{"status": string(result.Status)})
	_ = sys.Histogram(PacingWaitMs, outcome.PacingWait, nil)
	if outcome.BackoffWait > 0 {
		_ = sys.Histogram(BackoffWaitMs, outcome.BackoffWait, nil)
	}
	if result.Status == core.CrawlOK {
		_ = sys.Histogram(FetchLatencyMs, outcome.Latency, map[string]string{
			"status_code": strconv.Itoa(outcome.StatusCode),
		})
	}
}

// RecordDetection counts a throttling detection by signal source.
func RecordDetection(source core.DetectionSource) {
	count(ThrottleDetectionsTotal, map[string]string{"source": string(source)})
}

// RecordDiagnostics publishes the current pacing snapshot as gauges.
func RecordDiagnostics(diag core.Diagnostics) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	for _, domain := range diag.Domains {
		tags := map[string]string{"domain": domain.Domain}
		if domain.Admission != nil {
			_ = sys.Gauge(AdmissionAcquisitions, float64(domain.Admission.Acquisitions), tags)
			_ = sys.Gauge(AdmissionTokens, domain.Admission.AvailableTokens, tags)
		}
		if domain.Adaptive != nil {
			_ = sys.Gauge(AdaptiveDelaySeconds, domain.Adaptive.CurrentDelay.Seconds(), tags)
		}
	}

	_ = sys.Gauge(RobotsCacheEntries, float64(diag.Robots.Entries), nil)
	_ = sys.Gauge(RobotsCacheHits, float64(diag.Robots.Hits), nil)
	_ = sys.Gauge(RobotsCacheMisses, float64(diag.Robots.Misses), nil)
	_ = sys.Gauge(RobotsFetchFailures, float64(diag.Robots.FetchFailures), nil)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(at time.Time) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(at.Unix()), nil)
	}
}
