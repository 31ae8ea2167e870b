package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/config"
	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
)

func newCrawlFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "crawl"}
	c.Flags().Int("concurrency", engine.DefaultConcurrency, "")
	c.Flags().Float64("rate", engine.DefaultRate, "")
	c.Flags().String("domain-key", "host", "")
	c.Flags().Bool("adaptive", false, "")
	c.Flags().Bool("no-robots", false, "")
	c.Flags().Int("max-retries", engine.DefaultMaxRetries, "")
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestCrawlOverridesOnlyChangedFlags(t *testing.T) {
	overrides, err := crawlOverrides(newCrawlFlags(t))
	require.NoError(t, err)
	require.Empty(t, overrides)

	overrides, err = crawlOverrides(newCrawlFlags(t, "--rate=2.5", "--no-robots", "--adaptive", "--domain-key=registrable"))
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"pacing.default_rate_limit": 2.5,
		"robots.respect":            false,
		"adaptive.enabled":          true,
		"pacing.domain_key":         "registrable",
	}, overrides)
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(fmt.Errorf("rate: %w", config.ErrInvalidRate)))
	require.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(fmt.Errorf("open: %w", os.ErrNotExist)))
	require.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("boom")))
}

func TestCrawlCommandWritesJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html>hello</html>")
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	t.Setenv("CRAWLPACE_STORE_RECORD_EVENTS", "false")
	outPath := filepath.Join(t.TempDir(), "crawl.json")
	rootCmd.SetArgs([]string{
		"crawl", site.URL + "/ok", site.URL + "/private/x",
		"--rate", "100",
		"--output-format", "json",
		"--out", outPath,
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var results []engine.Result
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 2)

	statuses := map[string]core.CrawlStatus{}
	for _, r := range results {
		statuses[r.URL] = r.Status
	}
	require.Equal(t, core.CrawlOK, statuses[site.URL+"/ok"])
	require.Equal(t, core.CrawlDisallowed, statuses[site.URL+"/private/x"])
}

func TestUnfinishedError(t *testing.T) {
	results := func(statuses ...core.CrawlStatus) []engine.Result {
		out := make([]engine.Result, len(statuses))
		for i, status := range statuses {
			out[i] = engine.Result{URL: fmt.Sprintf("https://example.com/%d", i), Status: status}
		}
		return out
	}

	tests := []struct {
		name    string
		results []engine.Result
		wantErr bool
	}{
		{name: "Empty", results: nil},
		{name: "AllThrottled", results: results(core.CrawlThrottled, core.CrawlThrottled), wantErr: true},
		{name: "FailedAndThrottled", results: results(core.CrawlFailed, core.CrawlThrottled), wantErr: true},
		{name: "AllCancelled", results: results(core.CrawlCancelled), wantErr: true},
		{name: "OneOK", results: results(core.CrawlThrottled, core.CrawlOK)},
		{name: "DisallowedIsHandled", results: results(core.CrawlDisallowed, core.CrawlFailed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := unfinishedError(tt.results)
			if tt.wantErr {
				require.ErrorContains(t, err, "every URL failed")
				return
			}
			require.NoError(t, err)
		})
	}
}
