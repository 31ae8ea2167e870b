package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/config"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/fetcher"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	"github.com/crawlpace/crawlpace/internal/core/store"
	"github.com/crawlpace/crawlpace/internal/metrics"
	"github.com/crawlpace/crawlpace/internal/observability"
)

// pacingRuntime is everything a crawl needs, built from one Config.
type pacingRuntime struct {
	cfg      *config.Config
	pipeline *engine.Pipeline
	robots   *robots.Manager
	fetcher  *fetcher.Fetcher
	// store is nil unless store.record_events is set.
	store *store.Store
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*pacingRuntime, error) {
	settings, err := cfg.EngineSettings()
	if err != nil {
		return nil, err
	}

	logger := observability.Current()
	pipeline := engine.New(settings, logger)

	manager := newRobotsManager(cfg)
	if cfg.Robots.Respect {
		pipeline.Robots = manager
	}

	rt := &pacingRuntime{
		cfg:      cfg,
		pipeline: pipeline,
		robots:   manager,
		fetcher:  fetcher.New(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyBytes),
	}

	sink := metrics.EventSink{}
	if cfg.Store.RecordEvents {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.store = db
		sink.Next = db
	}
	pipeline.Events = sink

	logger.Debug("Pacing runtime ready",
		zap.Float64("default_rate", cfg.Pacing.DefaultRateLimit),
		zap.String("domain_key", cfg.Pacing.DomainKey),
		zap.Bool("adaptive", cfg.Adaptive.Enabled),
		zap.Bool("robots", cfg.Robots.Respect),
		zap.Bool("record_events", cfg.Store.RecordEvents))
	return rt, nil
}

// persistSnapshots stores the end-of-run diagnostics when recording is on.
func (rt *pacingRuntime) persistSnapshots(ctx context.Context) error {
	if rt.store == nil {
		return nil
	}
	return rt.store.SaveSnapshots(ctx, rt.pipeline.Diagnostics())
}

func (rt *pacingRuntime) Close() error {
	if rt == nil || rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

func newRobotsManager(cfg *config.Config) *robots.Manager {
	manager := robots.NewManager(cfg.Robots.UserAgent)
	manager.TTL = cfg.Robots.CacheTTL
	manager.FetchTimeout = cfg.Robots.FetchTimeout
	manager.MaxBodyBytes = cfg.Robots.MaxBodyBytes
	manager.Logger = observability.Current()
	return manager
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
