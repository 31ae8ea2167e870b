package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/config"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	apperrors "github.com/crawlpace/crawlpace/internal/errors"
	"github.com/crawlpace/crawlpace/internal/metrics"
	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/server/handlers"
	servermw "github.com/crawlpace/crawlpace/internal/server/middleware"
)

// Options wires the pacing subsystem into the HTTP server.
type Options struct {
	Config  config.ServerConfig
	Debug   config.DebugConfig
	Version string

	Pipeline    *engine.Pipeline
	Robots      *robots.Manager
	Fetch       engine.FetchFunc
	Concurrency int

	// Checks are added to the health manager, e.g. the history store.
	Checks map[string]handlers.HealthChecker
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	debug  config.DebugConfig
	health *handlers.HealthManager
	jobs   *handlers.JobQueue
	api    *handlers.PacingAPI
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	health := handlers.NewHealthManager(opts.Version)
	for name, check := range opts.Checks {
		health.RegisterChecker(name, check)
	}

	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = engine.New(engine.DefaultSettings(), observability.Current())
	}
	jobs := handlers.NewJobQueue(pipeline, opts.Fetch, opts.Concurrency)
	if opts.Config.MaxJobs > 0 {
		jobs.MaxJobs = opts.Config.MaxJobs
	}
	jobs.OnResult = metrics.RecordCrawlResult

	s := &Server{
		router: r,
		cfg:    opts.Config,
		debug:  opts.Debug,
		health: health,
		jobs:   jobs,
		api: &handlers.PacingAPI{
			Pipeline:      pipeline,
			Robots:        opts.Robots,
			Jobs:          jobs,
			OnDiagnostics: metrics.RecordDiagnostics,
		},
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()
	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(s.cfg.IdleTimeout, 120*time.Second),
	}

	observability.Current().Info("Starting HTTP server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr))
	metrics.SetServerStartTime(time.Now())

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then cancels running crawl jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.Current().Info("Shutting down HTTP server")
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.jobs.Close()
	return err
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured server port.
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
