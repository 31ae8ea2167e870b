package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	apperrors "github.com/crawlpace/crawlpace/internal/errors"
)

const maxCrawlRequestBytes = 1 << 20

// PacingAPI serves the /v1 diagnostics, robots and crawl endpoints.
type PacingAPI struct {
	Pipeline *engine.Pipeline
	Robots   *robots.Manager
	Jobs     *JobQueue
	// OnDiagnostics observes every snapshot served, e.g. to publish gauges.
	OnDiagnostics func(core.Diagnostics)
}

// RobotsResponse is the answer for GET /v1/robots.
type RobotsResponse struct {
	URL               string    `json:"url"`
	Origin            string    `json:"origin"`
	Allowed           bool      `json:"allowed"`
	CrawlDelaySeconds float64   `json:"crawl_delay_seconds"`
	FailOpen          bool      `json:"fail_open"`
	Status            int       `json:"status,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// CrawlRequest is the body of POST /v1/crawl.
type CrawlRequest struct {
	URLs []string `json:"urls"`
}

// Diagnostics handles GET /v1/diagnostics.
func (api *PacingAPI) Diagnostics(w http.ResponseWriter, r *http.Request) {
	diag := api.Pipeline.Diagnostics()
	if api.OnDiagnostics != nil {
		api.OnDiagnostics(diag)
	}
	writeJSON(w, http.StatusOK, diag)
}

// DomainDiagnostics handles GET /v1/diagnostics/{domain}.
func (api *PacingAPI) DomainDiagnostics(w http.ResponseWriter, r *http.Request) {
	domain := core.HostKey(chi.URLParam(r, "domain"), api.Pipeline.KeyMode)
	if domain == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("domain is required"))
		return
	}
	diag := api.Pipeline.DomainDiagnostics(domain)
	if diag == nil {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("no pacing state for domain %s", domain)))
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

// RobotsCheck handles GET /v1/robots?url=...
func (api *PacingAPI) RobotsCheck(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("url query parameter is required"))
		return
	}
	if api.Robots == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("robots policy manager not configured"))
		return
	}

	decision, err := api.Robots.Evaluate(r.Context(), target)
	if err != nil {
		respondWithError(w, r, apperrors.FromError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, RobotsResponse{
		URL:               decision.URL,
		Origin:            decision.Origin,
		Allowed:           decision.Allowed,
		CrawlDelaySeconds: decision.CrawlDelay.Seconds(),
		FailOpen:          decision.FailOpen,
		Status:            decision.Status,
		Reason:            decision.Reason,
		FetchedAt:         decision.FetchedAt,
	})
}

// SubmitCrawl handles POST /v1/crawl.
func (api *PacingAPI) SubmitCrawl(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	body := io.LimitReader(r.Body, maxCrawlRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be JSON with a urls array"))
		return
	}

	urls := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("at least one url is required"))
		return
	}
	if len(urls) > api.Jobs.maxURLs() {
		respondWithError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("at most %d urls per job", api.Jobs.maxURLs())))
		return
	}

	view, err := api.Jobs.Submit(urls)
	if err != nil {
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			respondWithError(w, r, apperrors.NewServiceUnavailableError(err.Error()))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to submit crawl job"))
		return
	}

	w.Header().Set("Location", "/v1/crawl/"+view.ID)
	writeJSON(w, http.StatusAccepted, view)
}

// CrawlStatus handles GET /v1/crawl/{id}.
func (api *PacingAPI) CrawlStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := api.Jobs.Get(id)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("crawl job %s not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
