package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/crawlpace/crawlpace/internal/errors"
)

// Check results. A check that did not run before the probe deadline is a
// timeout, which degrades the service without failing it.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of the Kubernetes-style probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is anything the server depends on: config, telemetry, the
// history store.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthManager serves /health and its probes from a set of named checks.
type HealthManager struct {
	version string

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checks: map[string]HealthChecker{}}
}

// RegisterChecker adds or replaces the check called name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	hm.checks[name] = checker
	hm.mu.Unlock()
}

// evaluate runs every check in name order until ctx expires and returns the
// per-check results and the overall status.
func (hm *HealthManager) evaluate(ctx context.Context) (string, map[string]string) {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	checkers := make([]HealthChecker, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checkers = append(checkers, hm.checks[name])
	}
	hm.mu.RUnlock()

	overall := statusHealthy
	results := make(map[string]string, len(names))
	for i, name := range names {
		switch {
		case ctx.Err() != nil:
			results[name] = statusTimeout
			if overall == statusHealthy {
				overall = statusDegraded
			}
		case checkers[i].CheckHealth(ctx) != nil:
			results[name] = statusUnhealthy
			overall = statusUnhealthy
		default:
			results[name] = statusHealthy
		}
	}
	return overall, results
}

func (hm *HealthManager) serve(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration, body func(string, map[string]string) any) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status, results := hm.evaluate(ctx)
	if status == statusUnhealthy {
		respondWithError(w, r, unhealthyEnvelope(probe, results))
		return
	}
	writeJSON(w, http.StatusOK, body(status, results))
}

func probeBody(status string, _ map[string]string) any {
	return ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
}

// HealthHandler reports every check.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serve(w, r, "", 5*time.Second, func(status string, results map[string]string) any {
		return HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    results,
		}
	})
}

// LivenessHandler reports that the process can answer HTTP. It runs no
// dependency checks.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeBody(statusHealthy, nil))
}

// ReadinessHandler gates crawl job traffic on every check.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serve(w, r, "ready", 5*time.Second, probeBody)
}

func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serve(w, r, "startup", 3*time.Second, probeBody)
}

func unhealthyEnvelope(probe string, results map[string]string) error {
	message := "health check failed"
	if probe != "" {
		message = probe + " probe failed"
	}

	var failing []string
	for name, result := range results {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	details := map[string]interface{}{"status": statusUnhealthy, "checks": results}
	if probe != "" {
		details["probe"] = probe
	}
	env := apperrors.NewServiceUnavailableError(message).WithDetails(details)
	if withCtx, err := env.WithContext(map[string]interface{}{"unhealthy_checks": failing}); err == nil {
		env = withCtx
	}
	return env
}
