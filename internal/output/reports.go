package output

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	"github.com/crawlpace/crawlpace/internal/core/store"
)

// CrawlReport lists one row per crawled URL with a status tally footer.
func CrawlReport(results []engine.Result) Report {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		row := []string{result.URL, string(result.Status), "-", "-", "-", "-", "-"}
		if out := result.Outcome; out != nil {
			row[2] = intOrDash(out.StatusCode)
			row[3] = strconv.Itoa(out.Attempts)
			row[4] = formatDuration(out.PacingWait)
			row[5] = formatDuration(out.BackoffWait)
			row[6] = formatDuration(out.Latency)
		}
		rows = append(rows, row)
	}

	return Report{
		Title:  "Crawl results",
		Header: []string{"URL", "RESULT", "HTTP", "ATTEMPTS", "PACING WAIT", "BACKOFF WAIT", "LATENCY"},
		Rows:   rows,
		Footer: []string{summaryLine(engine.Summary(results)), "", "", "", "", "", ""},
		Data:   results,
	}
}

// DiagnosticsReport lists the per-domain pacing state.
func DiagnosticsReport(diag core.Diagnostics) Report {
	rows := make([][]string, 0, len(diag.Domains))
	for _, d := range diag.Domains {
		row := []string{d.Domain, "-", "-", "-", "-", "0", "-"}
		if a := d.Admission; a != nil {
			row[1] = strconv.FormatFloat(a.Rate, 'f', -1, 64)
			row[2] = strconv.Itoa(a.Capacity)
			row[3] = strconv.FormatInt(a.Acquisitions, 10)
			row[4] = formatDuration(a.AverageWait)
		}
		if s := d.Signals; s != nil {
			row[5] = strconv.FormatInt(s.Detections, 10)
		}
		if ad := d.Adaptive; ad != nil {
			row[6] = formatDuration(ad.CurrentDelay)
		}
		rows = append(rows, row)
	}

	footer := fmt.Sprintf("robots: %d cached, %d hits, %d misses, %d failures",
		diag.Robots.Entries, diag.Robots.Hits, diag.Robots.Misses, diag.Robots.FetchFailures)

	return Report{
		Title:  "Pacing diagnostics",
		Header: []string{"DOMAIN", "RATE", "BURST", "ACQUIRED", "AVG WAIT", "DETECTIONS", "ADAPTIVE DELAY"},
		Rows:   rows,
		Footer: []string{footer, "", "", "", "", "", ""},
		Data:   diag,
	}
}

// RobotsReport lists robots decisions.
func RobotsReport(decisions []*robots.Decision) Report {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		if d == nil {
			continue
		}
		allowed := "no"
		if d.Allowed {
			allowed = "yes"
		}
		note := d.Reason
		if d.FailOpen && note == "" {
			note = "fail-open"
		}
		rows = append(rows, []string{d.URL, allowed, formatDuration(d.CrawlDelay), intOrDash(d.Status), dashIfEmpty(note)})
	}

	return Report{
		Title:  "Robots policy",
		Header: []string{"URL", "ALLOWED", "CRAWL DELAY", "ROBOTS HTTP", "NOTE"},
		Rows:   rows,
		Data:   decisions,
	}
}

// ScheduleReport lists the backoff window for every retry.
func ScheduleReport(windows []engine.BackoffWindow) Report {
	rows := make([][]string, 0, len(windows))
	var worst time.Duration
	for _, w := range windows {
		rows = append(rows, []string{strconv.Itoa(w.Attempt), formatDuration(w.Min), formatDuration(w.Max)})
		worst += w.Max
	}
	return Report{
		Title:  "Backoff schedule",
		Header: []string{"RETRY", "MIN DELAY", "MAX DELAY"},
		Rows:   rows,
		Footer: []string{"worst case", "", formatDuration(worst)},
		Data:   windows,
	}
}

// EventsReport lists stored throttle events.
func EventsReport(entries []store.EventEntry) Report {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		ev := entry.Event
		hint := "-"
		if ev.RetryAfter != nil {
			hint = formatDuration(*ev.RetryAfter)
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			ev.DetectedAt.UTC().Format(time.RFC3339),
			ev.Domain,
			intOrDash(ev.StatusCode),
			string(ev.Source),
			hint,
			strconv.Itoa(ev.Attempt),
		})
	}
	return Report{
		Title:  "Throttle events",
		Header: []string{"ID", "DETECTED", "DOMAIN", "HTTP", "SOURCE", "RETRY AFTER", "ATTEMPT"},
		Rows:   rows,
		Data:   entries,
	}
}

// SnapshotsReport lists stored end-of-run domain summaries.
func SnapshotsReport(snapshots []store.Snapshot) Report {
	rows := make([][]string, 0, len(snapshots))
	for _, snap := range snapshots {
		delay := "-"
		if snap.AdaptiveDelay != nil {
			delay = formatDuration(*snap.AdaptiveDelay)
		}
		rows = append(rows, []string{
			snap.RecordedAt.UTC().Format(time.RFC3339),
			snap.Domain,
			strconv.FormatInt(snap.Acquisitions, 10),
			formatDuration(snap.TotalWait),
			strconv.FormatInt(snap.Detections, 10),
			delay,
		})
	}
	return Report{
		Title:  "Domain snapshots",
		Header: []string{"RECORDED", "DOMAIN", "ACQUIRED", "TOTAL WAIT", "DETECTIONS", "ADAPTIVE DELAY"},
		Rows:   rows,
		Data:   snapshots,
	}
}

func summaryLine(counts map[core.CrawlStatus]int) string {
	if len(counts) == 0 {
		return "no results"
	}
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	line := ""
	for i, status := range statuses {
		if i > 0 {
			line += ", "
		}
		line += fmt.Sprintf("%s=%d", status, counts[core.CrawlStatus(status)])
	}
	return line
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func intOrDash(v int) string {
	if v == 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func dashIfEmpty(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
