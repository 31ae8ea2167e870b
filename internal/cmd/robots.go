package cmd

import (
	"github.com/spf13/cobra"

	"github.com/crawlpace/crawlpace/internal/core/robots"
	"github.com/crawlpace/crawlpace/internal/output"
)

var robotsCmd = &cobra.Command{
	Use:   "robots",
	Short: "Inspect robots.txt policy",
}

var robotsCheckCmd = &cobra.Command{
	Use:   "check <url>...",
	Short: "Report whether URLs may be fetched and their crawl-delay",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := resolveURLs(args, "")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, nil)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "robots.check")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		manager := newRobotsManager(cfg)
		decisions := make([]*robots.Decision, 0, len(urls))
		for _, target := range urls {
			decision, err := manager.Evaluate(ctx, target)
			if err != nil {
				return err
			}
			decisions = append(decisions, decision)
		}

		return writeReports(sink.writer, format, output.RobotsReport(decisions))
	},
}

func init() {
	robotsCmd.AddCommand(robotsCheckCmd)
	rootCmd.AddCommand(robotsCmd)
	addOutputFlags(robotsCheckCmd)
}
