package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/observability"
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Fetch one URL once and explain the pacing verdict",
	Long: `Fetch one URL once without pacing or retries, then report the robots
decision, the throttle detection verdict and the delay a retry would use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		if err := validateURL(target); err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, nil)
		if err != nil {
			return err
		}
		settings, err := cfg.EngineSettings()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close() // nolint:errcheck // best-effort cleanup

		log := observability.CLILogger
		domain, err := core.DomainKey(target, settings.KeyMode)
		if err != nil {
			return err
		}

		decision, err := rt.robots.Evaluate(ctx, target)
		if err != nil {
			return err
		}
		log.Info(fmt.Sprintf("[1/3] robots.txt... allowed=%t crawl-delay=%s", decision.Allowed, decision.CrawlDelay),
			zap.String("origin", decision.Origin),
			zap.Bool("fail_open", decision.FailOpen))
		if !decision.Allowed && cfg.Robots.Respect {
			log.Warn("URL is disallowed; a crawl would skip it without fetching")
			return nil
		}

		start := time.Now()
		resp, err := rt.fetcher.Fetch(ctx, target)
		if err != nil {
			log.Error("[2/3] fetch... ❌", zap.Error(err))
			return err
		}
		log.Info(fmt.Sprintf("[2/3] fetch... HTTP %d in %s", resp.StatusCode, time.Since(start).Round(time.Millisecond)),
			zap.Int("body_bytes", len(resp.Body)))

		det := rt.pipeline.Detector.Detect(domain, *resp)
		if !det.RateLimited {
			log.Info("[3/3] throttle detection... ✅ not rate limited")
			return nil
		}

		delay, err := rt.pipeline.Backoff.Delay(0, det.Hint())
		if err != nil {
			return err
		}
		log.Warn(fmt.Sprintf("[3/3] throttle detection... ⚠️  rate limited via %s; first retry in %s", det.Source, delay.Round(time.Millisecond)),
			zap.String("marker", det.Marker),
			zap.Bool("retry_after_hint", det.HasHint()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
