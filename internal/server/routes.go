package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/appid"
	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)
	s.router.Get("/health/startup", s.health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/diagnostics", s.api.Diagnostics)
		r.Get("/diagnostics/{domain}", s.api.DomainDiagnostics)
		r.Get("/robots", s.api.RobotsCheck)
		r.Post("/crawl", s.api.SubmitCrawl)
		r.Get("/crawl/{id}", s.api.CrawlStatus)
	})

	if s.debug.PprofEnabled {
		s.router.Mount("/debug", middleware.Profiler())
		observability.Current().Warn("pprof endpoints enabled", zap.String("path", "/debug/pprof"))
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes POST /admin/signal when CRAWLPACE_ADMIN_TOKEN is set.
func (s *Server) registerAdminEndpoint() {
	envName := appid.Get().EnvName("admin_token")
	adminToken := os.Getenv(envName)
	logger := observability.Current()

	if adminToken == "" {
		logger.Debug("Admin signal endpoint disabled (no " + envName + " set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("auth", "bearer token"))
	logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
