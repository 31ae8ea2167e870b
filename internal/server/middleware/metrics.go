package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/observability"
)

// HTTP metric names.
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDurationMs = "http_request_duration_ms"
	HTTPRequestSizeBytes  = "http_request_size_bytes"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
)

// requestRecord is what one completed request reports.
type requestRecord struct {
	method    string
	path      string
	endpoint  string
	status    int
	duration  time.Duration
	reqBytes  int64
	respBytes int64
	requestID string
}

func (rec requestRecord) emit(sys *telemetry.System) {
	labels := map[string]string{
		"method":   rec.method,
		"endpoint": rec.endpoint,
		"status":   strconv.Itoa(rec.status),
	}
	sizeLabels := map[string]string{"method": rec.method, "endpoint": rec.endpoint}

	_ = sys.Counter(HTTPRequestsTotal, 1, labels)
	_ = sys.Histogram(HTTPRequestDurationMs, rec.duration, labels)
	_ = sys.Gauge(HTTPRequestSizeBytes, float64(rec.reqBytes), sizeLabels)
	_ = sys.Gauge(HTTPResponseSizeBytes, float64(rec.respBytes), sizeLabels)

	if rec.status >= http.StatusBadRequest {
		errorLabels := map[string]string{
			"method":     rec.method,
			"endpoint":   rec.endpoint,
			"status":     strconv.Itoa(rec.status),
			"error_type": "client_error",
		}
		if rec.status >= http.StatusInternalServerError {
			errorLabels["error_type"] = "server_error"
		}
		_ = sys.Counter(HTTPErrorsTotal, 1, errorLabels)
	}
}

func (rec requestRecord) log() {
	if observability.ServerLogger == nil {
		return
	}
	observability.ServerLogger.Info("HTTP request completed",
		zap.String("method", rec.method),
		zap.String("path", rec.path),
		zap.String("endpoint", rec.endpoint),
		zap.Int("status", rec.status),
		zap.Duration("duration", rec.duration),
		zap.Int64("request_size", rec.reqBytes),
		zap.Int64("response_size", rec.respBytes),
		zap.String("requestID", rec.requestID),
	)
}

// RequestMetrics records count, latency and sizes per route pattern and
// logs one line per request. It is a pass-through while telemetry is off.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		rec := requestRecord{
			method:    r.Method,
			path:      r.URL.Path,
			endpoint:  getEndpointPattern(r),
			status:    status,
			duration:  time.Since(start),
			reqBytes:  max(r.ContentLength, 0),
			respBytes: int64(ww.BytesWritten()),
			requestID: GetRequestID(r.Context()),
		}
		rec.emit(sys)
		rec.log()
	})
}

// getEndpointPattern returns the chi route pattern so crawl job IDs and
// domains in paths do not become metric labels.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/health"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/unknown"
	default:
		return "/unknown"
	}
}
