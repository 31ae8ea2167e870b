package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/appid"
	"github.com/crawlpace/crawlpace/internal/config"
	errwrap "github.com/crawlpace/crawlpace/internal/errors"
	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/server"
	"github.com/crawlpace/crawlpace/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pacing HTTP API",
	Long: `Start the HTTP API: crawl jobs, diagnostics, robots checks, health
probes and Prometheus metrics.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload per-domain rate overrides from the config file`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (default from server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default from server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		overrides["server.host"] = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		overrides["server.port"] = port
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return err
	}

	identity := appid.Get()
	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, identity.ConfigName)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, identity.ConfigName); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup

	checks := map[string]handlers.HealthChecker{
		"config": handlers.HealthCheckFunc(func(context.Context) error {
			return config.GetConfig().Validate()
		}),
	}
	if cfg.Metrics.Enabled {
		checks["telemetry"] = handlers.HealthCheckFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		})
	}
	if rt.store != nil {
		checks["store"] = handlers.HealthCheckFunc(rt.store.CheckHealth)
	}

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.SetAppIdentity(identity)
	handlers.SetCrawlerAgent(cfg.Fetch.UserAgent)

	srv := server.New(server.Options{
		Config:      cfg.Server,
		Debug:       cfg.Debug,
		Version:     versionInfo.Version,
		Pipeline:    rt.pipeline,
		Robots:      rt.robots,
		Fetch:       rt.fetcher.Fetch,
		Concurrency: cfg.Fetch.Concurrency,
		Checks:      checks,
	})

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Handlers run LIFO: the HTTP server stops before the logger flushes.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		if err := rt.persistSnapshots(shutdownCtx); err != nil {
			logger.Warn("Failed to store domain snapshots", zap.Error(err))
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading pacing overrides")
		return reloadOverrides(ctx, rt)
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// reloadOverrides re-reads the config file and retunes per-domain limits
// in place. Other settings need a restart.
func reloadOverrides(ctx context.Context, rt *pacingRuntime) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
	}
	cfg, err := config.Load(ctx, v)
	if err != nil {
		return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
	}
	settings, err := cfg.EngineSettings()
	if err != nil {
		return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
	}

	rt.pipeline.Pacer.Admission.ApplyOverrides(settings.Overrides)
	observability.Current().Info("Pacing overrides reloaded",
		zap.Int("overrides", len(settings.Overrides)),
		zap.String("file", v.ConfigFileUsed()))
	return nil
}
