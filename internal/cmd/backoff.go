package cmd

import (
	"github.com/spf13/cobra"

	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/output"
)

var backoffCmd = &cobra.Command{
	Use:   "backoff",
	Short: "Inspect the retry backoff policy",
}

var backoffScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the delay window for every permitted retry",
	Long: `Print the delay window for every permitted retry. Each window is
min(base * 2^retry + jitter, max_delay) with jitter in [0s, 1s).
A server Retry-After hint replaces the computed delay when present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		for flag, key := range map[string]string{
			"base-delay": "backoff.base_delay",
			"max-delay":  "backoff.max_delay",
		} {
			if cmd.Flags().Changed(flag) {
				v, err := cmd.Flags().GetDuration(flag)
				if err != nil {
					return err
				}
				overrides[key] = v.String()
			}
		}
		if cmd.Flags().Changed("max-retries") {
			v, err := cmd.Flags().GetInt("max-retries")
			if err != nil {
				return err
			}
			overrides["backoff.max_retries"] = v
		}

		cfg, err := loadConfig(cmd.Context(), overrides)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "backoff.schedule")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		policy := engine.NewBackoff(cfg.Backoff.BaseDelay, cfg.Backoff.MaxDelay, cfg.Backoff.MaxRetries)
		return writeReports(sink.writer, format, output.ScheduleReport(policy.Schedule()))
	},
}

func init() {
	backoffScheduleCmd.Flags().Duration("base-delay", engine.DefaultBaseDelay, "Delay before the first retry")
	backoffScheduleCmd.Flags().Duration("max-delay", engine.DefaultMaxDelay, "Upper bound for any computed delay")
	backoffScheduleCmd.Flags().Int("max-retries", engine.DefaultMaxRetries, "Retries permitted per URL")
	addOutputFlags(backoffScheduleCmd)

	backoffCmd.AddCommand(backoffScheduleCmd)
	rootCmd.AddCommand(backoffCmd)
}
