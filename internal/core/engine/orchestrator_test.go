package engine

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/core"
)

func TestOrchestratorCrawlClassifiesResults(t *testing.T) {
	clock := newFakeClock()
	settings := DefaultSettings()
	settings.Rate = 100
	settings.MaxRetries = 1
	p := newTestPipeline(clock, settings)
	p.Robots = &stubRobots{disallow: "/private"}

	fetch := func(ctx context.Context, rawURL string) (*core.Response, error) {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		switch parsed.Host {
		case "busy.example":
			return &core.Response{StatusCode: 429}, nil
		case "down.example":
			return nil, errors.New("dial tcp: connection refused")
		default:
			return &core.Response{StatusCode: 200}, nil
		}
	}

	var seen atomic.Int64
	o := &Orchestrator{
		Pipeline:    p,
		Fetch:       fetch,
		Concurrency: 2,
		OnResult:    func(Result) { seen.Add(1) },
	}

	results, err := o.Crawl(context.Background(), []string{
		"https://ok.example/",
		" ",
		"https://ok.example/private/page",
		"https://busy.example/",
		"https://down.example/",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.EqualValues(t, 4, seen.Load())

	require.Equal(t, core.CrawlOK, results[0].Status)
	require.Equal(t, core.CrawlDisallowed, results[1].Status)
	require.Equal(t, core.CrawlThrottled, results[2].Status)
	require.Equal(t, 2, results[2].Outcome.Attempts)
	require.Equal(t, core.CrawlFailed, results[3].Status)
	require.Contains(t, results[3].Message, "connection refused")

	counts := Summary(results)
	require.Equal(t, 1, counts[core.CrawlOK])
	require.Equal(t, 1, counts[core.CrawlThrottled])
}

func TestOrchestratorCancelled(t *testing.T) {
	p := newTestPipeline(newFakeClock(), DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &Orchestrator{
		Pipeline: p,
		Fetch: func(ctx context.Context, rawURL string) (*core.Response, error) {
			return &core.Response{StatusCode: 200}, nil
		},
	}
	results, err := o.Crawl(ctx, []string{"https://a.example/", "https://b.example/"})
	require.ErrorIs(t, err, context.Canceled)
	for _, result := range results {
		require.Equal(t, core.CrawlCancelled, result.Status)
	}
}
