package metrics

import (
	"strconv"

	"github.com/crawlpace/crawlpace/internal/observability"
)

// API error metric names.
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

func count(name string, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

// RecordError counts an API error response.
func RecordError(code string, status int) {
	count(ErrorsTotalName, map[string]string{"error_code": code, "http_status": strconv.Itoa(status)})
}

// RecordErrorByEndpoint counts an error against its route pattern.
func RecordErrorByEndpoint(endpoint, code string) {
	count(ErrorsByEndpointName, map[string]string{"endpoint": endpoint, "error_code": code})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotalName, nil)
}
