package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/server/handlers"
)

// isPermissionError normalizes OS-specific permission errors so the test
// can skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// initMetricsOrSkip starts a real exporter and tears global telemetry down
// afterwards.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

func TestMetricsEndpointReportsCrawlActivity(t *testing.T) {
	initMetricsOrSkip(t)
	srv, site := newTestServer(t)

	payload, err := json.Marshal(handlers.CrawlRequest{URLs: []string{site.URL + "/a", site.URL + "/b"}})
	require.NoError(t, err)
	rec := serve(srv, http.MethodPost, "/v1/crawl", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted handlers.JobView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	require.Eventually(t, func() bool {
		rec := serve(srv, http.MethodGet, "/v1/crawl/"+submitted.ID, nil)
		var view handlers.JobView
		return json.NewDecoder(rec.Body).Decode(&view) == nil && view.Status == handlers.JobDone
	}, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		serve(srv, http.MethodGet, "/health", nil)
	}
	serve(srv, http.MethodGet, "/v1/diagnostics", nil)

	rec = serve(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total")
	assert.Contains(t, metricsContent, "test_crawl_results_total")
}

func TestMetricsEndpointWithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	srv, _ := newTestServer(t)
	rec := serve(srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
