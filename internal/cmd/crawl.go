package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/observability"
	"github.com/crawlpace/crawlpace/internal/output"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [url...]",
	Short: "Fetch URLs under the pacing policy",
	Long: `Fetch every URL through the pacing pipeline: robots.txt gating,
per-domain admission, adaptive delay, throttle detection and retry backoff.

URLs come from arguments, --file (one per line, "-" for stdin) or both.`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringP("file", "f", "", "Read URLs from file (one per line, - for stdin)")
	crawlCmd.Flags().Int("concurrency", engine.DefaultConcurrency, "Maximum in-flight fetches across all domains")
	crawlCmd.Flags().Float64("rate", engine.DefaultRate, "Default requests per second per domain")
	crawlCmd.Flags().String("domain-key", string(core.KeyHost), "Domain partition: host|registrable")
	crawlCmd.Flags().Bool("adaptive", false, "Enable latency-driven adaptive throttling")
	crawlCmd.Flags().Bool("no-robots", false, "Do not fetch or honor robots.txt")
	crawlCmd.Flags().Int("max-retries", engine.DefaultMaxRetries, "Retries per URL after throttling")
	crawlCmd.Flags().Bool("diagnostics", false, "Print per-domain pacing diagnostics after the crawl")
	addOutputFlags(crawlCmd)
}

// crawlOverrides maps changed crawl flags onto config keys.
func crawlOverrides(cmd *cobra.Command) (map[string]any, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()

	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return nil, err
		}
		overrides["fetch.concurrency"] = v
	}
	if flags.Changed("rate") {
		v, err := flags.GetFloat64("rate")
		if err != nil {
			return nil, err
		}
		overrides["pacing.default_rate_limit"] = v
	}
	if flags.Changed("domain-key") {
		v, err := flags.GetString("domain-key")
		if err != nil {
			return nil, err
		}
		overrides["pacing.domain_key"] = v
	}
	if flags.Changed("adaptive") {
		v, err := flags.GetBool("adaptive")
		if err != nil {
			return nil, err
		}
		overrides["adaptive.enabled"] = v
	}
	if flags.Changed("no-robots") {
		v, err := flags.GetBool("no-robots")
		if err != nil {
			return nil, err
		}
		overrides["robots.respect"] = !v
	}
	if flags.Changed("max-retries") {
		v, err := flags.GetInt("max-retries")
		if err != nil {
			return nil, err
		}
		overrides["backoff.max_retries"] = v
	}
	return overrides, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}
	urls, err := resolveURLs(args, file)
	if err != nil {
		return err
	}
	showDiagnostics, err := cmd.Flags().GetBool("diagnostics")
	if err != nil {
		return err
	}

	overrides, err := crawlOverrides(cmd)
	if err != nil {
		return err
	}

	// Ctrl+C stops admitting new URLs; finished results are still printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return err
	}

	format, sink, err := openCommandSink(cmd, "crawl")
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup

	logger := observability.Current()
	orchestrator := &engine.Orchestrator{
		Pipeline:    rt.pipeline,
		Fetch:       rt.fetcher.Fetch,
		Concurrency: cfg.Fetch.Concurrency,
		OnResult: func(result engine.Result) {
			logger.Debug("URL finished",
				zap.String("url", result.URL),
				zap.String("status", string(result.Status)),
				zap.String("message", result.Message))
		},
	}

	startedAt := time.Now()
	results, crawlErr := orchestrator.Crawl(ctx, urls)
	logCrawlSummary(results, startedAt)

	if err := rt.persistSnapshots(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("Failed to store domain snapshots", zap.Error(err))
	}

	reports := []output.Report{output.CrawlReport(results)}
	if showDiagnostics {
		diag := rt.pipeline.Diagnostics()
		if format == output.FormatJSON {
			reports = []output.Report{{Data: map[string]any{"results": results, "diagnostics": diag}}}
		} else {
			reports = append(reports, output.DiagnosticsReport(diag))
		}
	}
	if err := writeReports(sink.writer, format, reports...); err != nil {
		return err
	}

	if crawlErr != nil {
		return fmt.Errorf("crawl interrupted: %w", crawlErr)
	}
	return unfinishedError(results)
}

// unfinishedError reports an error when no URL reached a terminal policy
// outcome: every result failed, stayed throttled or was cancelled.
// Disallowed URLs count as handled.
func unfinishedError(results []engine.Result) error {
	if len(results) == 0 {
		return nil
	}
	counts := engine.Summary(results)
	unfinished := counts[core.CrawlFailed] + counts[core.CrawlThrottled] + counts[core.CrawlCancelled]
	if unfinished < len(results) {
		return nil
	}
	return fmt.Errorf("every URL failed (%d failed, %d throttled, %d cancelled)",
		counts[core.CrawlFailed], counts[core.CrawlThrottled], counts[core.CrawlCancelled])
}

func logCrawlSummary(results []engine.Result, startedAt time.Time) {
	counts := engine.Summary(results)
	elapsed := time.Since(startedAt)
	fields := []zap.Field{
		zap.Int("urls", len(results)),
		zap.Duration("elapsed", elapsed),
	}
	for _, status := range []core.CrawlStatus{core.CrawlOK, core.CrawlDisallowed, core.CrawlThrottled, core.CrawlFailed, core.CrawlCancelled} {
		fields = append(fields, zap.Int(string(status), counts[status]))
	}
	observability.Current().Info("Crawl finished", fields...)
}
