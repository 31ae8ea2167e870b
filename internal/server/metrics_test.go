package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/require"

	apperrors "github.com/crawlpace/crawlpace/internal/errors"
	"github.com/crawlpace/crawlpace/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubExporter(t *testing.T, transport roundTripFunc) {
	t.Helper()
	originalClient := metricsProxyClient
	originalExporter := observability.PrometheusExporter
	metricsProxyClient = &http.Client{Transport: transport}
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() {
		metricsProxyClient = originalClient
		observability.PrometheusExporter = originalExporter
	})
}

func TestMetricsHandlerProxiesExporter(t *testing.T) {
	stubExporter(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/metrics", req.URL.Path)
		header := make(http.Header)
		header.Set("Content-Type", "text/plain; version=0.0.4")
		header.Set("Connection", "close")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("test_crawl_results_total{status=\"ok\"} 3\n")),
			Header:     header,
		}, nil
	})

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Empty(t, rec.Header().Get("Connection"))
	require.Contains(t, rec.Body.String(), "test_crawl_results_total")
}

func TestMetricsHandlerExporterDown(t *testing.T) {
	stubExporter(t, func(*http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerWithoutExporter(t *testing.T) {
	original := observability.PrometheusExporter
	observability.PrometheusExporter = nil
	t.Cleanup(func() { observability.PrometheusExporter = original })

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, apperrors.CodeServiceUnavailable, resp.Error.Code)
}
