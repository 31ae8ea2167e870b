// Package errors maps crawlpace failures onto gofulmen error envelopes and
// writes them as JSON API responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	"github.com/crawlpace/crawlpace/internal/metrics"
	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/server/middleware"
)

// Error codes used by the API.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeDisallowed         = "DISALLOWED_BY_ROBOTS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeTimeout            = "TIMEOUT"
	CodeCancelled          = "CANCELLED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// statusClientClosed is nginx's "client closed request".
const statusClientClosed = 499

var statusByCode = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeDisallowed:         http.StatusForbidden,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeCancelled:          statusClientClosed,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

// Wrap builds an envelope for err under code. The request ID from ctx
// becomes both correlation and trace ID.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	env := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	if err == nil {
		return env
	}
	return withContext(env, map[string]interface{}{"wrapped_error": err.Error()})
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

// FromError classifies pacing and robots errors.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var permanent *engine.PermanentFailure
	switch {
	case stderrors.Is(err, robots.ErrInvalidURL):
		return Wrap(ctx, CodeInvalidInput, err, "invalid URL")
	case stderrors.Is(err, engine.ErrDisallowed):
		return Wrap(ctx, CodeDisallowed, err, "URL is disallowed by robots.txt")
	case stderrors.As(err, &permanent):
		return withContext(Wrap(ctx, CodeRateLimited, err, "target kept throttling after all retries"), map[string]interface{}{
			"domain":   permanent.Domain,
			"attempts": permanent.Attempts,
			"source":   string(permanent.Last.Source),
		})
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(ctx, CodeTimeout, err, "operation timed out")
	case stderrors.Is(err, context.Canceled):
		return Wrap(ctx, CodeCancelled, err, "operation cancelled")
	default:
		env := Wrap(ctx, CodeInternal, err, "unexpected error")
		if sev, sevErr := env.WithSeverity(errors.SeverityHigh); sevErr == nil {
			env = sev
		}
		return env
	}
}

// EnsureEnvelope normalizes any error, including nil, into an envelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		if sev, sevErr := env.WithSeverity(errors.SeverityCritical); sevErr == nil {
			env = sev
		}
		return env
	}
	return FromError(context.Background(), err)
}

// HTTPStatusFromEnvelope resolves the response status for an envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[envelope.Code]; ok {
		return status
	}
	if envelope.Code == "VALIDATION_FAILED" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail as {"error": ...}.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError classifies err, logs it, counts it and writes the JSON
// envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}

	envelope := EnsureEnvelope(err)
	if err != nil {
		// Classify against the request context so the request ID sticks.
		envelope = FromError(ctx, err)
	}
	if envelope.CorrelationID == "" {
		id := requestID(ctx)
		if id == "" {
			id = "fallback-" + errors.GenerateCorrelationID()
		}
		envelope = envelope.WithCorrelationID(id)
	}

	status := HTTPStatusFromEnvelope(envelope)
	logEnvelope(envelope, status)
	metrics.RecordError(envelope.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(endpointPattern(r), envelope.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   publicDetails(envelope),
		RequestID: envelope.CorrelationID,
	}})
}

// publicDetails merges envelope details with context; details win.
func publicDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	merged := make(map[string]interface{}, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Context {
		merged[key] = value
	}
	for key, value := range envelope.Details {
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}

func withContext(env *errors.ErrorEnvelope, data map[string]interface{}) *errors.ErrorEnvelope {
	updated, err := env.WithContext(data)
	if err != nil {
		return env
	}
	return updated
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}

// endpointPattern prefers the chi route pattern so job IDs in paths do not
// explode metric cardinality.
func endpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
