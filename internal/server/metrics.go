package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/crawlpace/crawlpace/internal/errors"
	"github.com/crawlpace/crawlpace/internal/metrics"
	"github.com/crawlpace/crawlpace/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// hopHeaders are not copied from the exporter response.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// handleMetrics refreshes the pacing gauges from live diagnostics and then
// serves the exporter output, so every scrape sees current bucket state.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if observability.TelemetrySystem != nil {
		metrics.RecordDiagnostics(s.api.Pipeline.Diagnostics())
	}
	MetricsHandler(w, r)
}

// MetricsHandler proxies the Prometheus exporter, which listens on its own
// port, onto the API server's /metrics.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	port := observability.GetMetricsPort()
	if port == 0 {
		port = 9090
	}
	target := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		envelope := apperrors.Wrap(r.Context(), apperrors.CodeServiceUnavailable, err, "Prometheus exporter unavailable")
		envelope, _ = envelope.WithContext(map[string]any{"metrics_url": target})
		HandleError(w, r, envelope)
		return
	}
	defer resp.Body.Close() // nolint:errcheck

	for key, values := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		observability.Current().Warn("Failed to write metrics response", zap.Error(err))
	}
}
