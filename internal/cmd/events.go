package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crawlpace/crawlpace/internal/core/store"
	"github.com/crawlpace/crawlpace/internal/output"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage recorded throttle events and domain snapshots",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded throttle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := eventQueryFromFlags(cmd, true)
		if err != nil {
			return err
		}

		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListEvents(cmd.Context(), query)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "events.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if len(entries) == 0 && format != output.FormatJSON {
			_, err := fmt.Fprintln(sink.writer, "(no recorded throttle events)")
			return err
		}
		return writeReports(sink.writer, format, output.EventsReport(entries))
	},
}

var eventsSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored end-of-run domain snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := eventQueryFromFlags(cmd, true)
		if err != nil {
			return err
		}

		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		snapshots, err := db.ListSnapshots(cmd.Context(), query)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "events.snapshots")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if len(snapshots) == 0 && format != output.FormatJSON {
			_, err := fmt.Fprintln(sink.writer, "(no stored snapshots)")
			return err
		}
		return writeReports(sink.writer, format, output.SnapshotsReport(snapshots))
	},
}

var eventsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete recorded throttle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := eventQueryFromFlags(cmd, false)
		if err != nil {
			return err
		}
		if err := query.Validate(); err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountEvents(cmd.Context(), query)
		if err != nil {
			return err
		}

		format, sink, err := openCommandSink(cmd, "events.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if dryRun {
			return writeResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetEvents(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeResetResult(format, sink.writer, matched, deleted, false)
	},
}

// eventQueryFromFlags builds a query from --all/--domain/--prefix/--limit.
// When listing, no selector means everything.
func eventQueryFromFlags(cmd *cobra.Command, listing bool) (store.EventQuery, error) {
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return store.EventQuery{}, err
	}
	domain, err := cmd.Flags().GetString("domain")
	if err != nil {
		return store.EventQuery{}, err
	}
	prefix, err := cmd.Flags().GetString("prefix")
	if err != nil {
		return store.EventQuery{}, err
	}

	query := store.EventQuery{
		All:    all,
		Domain: strings.TrimSpace(domain),
		Prefix: strings.TrimSpace(prefix),
	}
	if listing {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return store.EventQuery{}, err
		}
		query.Limit = limit
		if !query.All && query.Domain == "" && query.Prefix == "" {
			query.All = true
		}
	}
	return query, nil
}

func openConfiguredStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd.Context(), nil)
	if err != nil {
		return nil, err
	}
	return openStore(cmd.Context(), cfg)
}

func writeResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d throttle event(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d throttle event(s)\n", deleted, matched)
	return err
}

func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("all", false, "Select every domain")
	cmd.Flags().String("domain", "", "Select a single domain (exact match)")
	cmd.Flags().String("prefix", "", "Select domains with matching prefix")
}

func init() {
	for _, c := range []*cobra.Command{eventsListCmd, eventsSnapshotsCmd} {
		addSelectorFlags(c)
		c.Flags().Int("limit", 100, "Maximum rows to return (0 for no limit)")
		addOutputFlags(c)
	}

	addSelectorFlags(eventsResetCmd)
	eventsResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	eventsResetCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
	addOutputFlags(eventsResetCmd)

	eventsCmd.AddCommand(eventsListCmd, eventsSnapshotsCmd, eventsResetCmd)
	rootCmd.AddCommand(eventsCmd)
}
