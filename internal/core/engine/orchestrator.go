package engine

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/crawlpace/crawlpace/internal/core"
)

// DefaultConcurrency bounds in-flight URLs across all domains.
const DefaultConcurrency = 8

// Result is the record of one URL in a batch crawl.
type Result struct {
	URL     string           `json:"url"`
	Status  core.CrawlStatus `json:"status"`
	Outcome *Outcome         `json:"outcome,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Orchestrator crawls a batch of URLs concurrently through a Pipeline.
// Per-URL failures become results; only cancellation aborts the batch.
type Orchestrator struct {
	Pipeline    *Pipeline
	Fetch       FetchFunc
	Concurrency int
	// OnResult, when set, is called as each URL finishes.
	OnResult func(Result)
}

// Crawl runs every URL and returns results in input order. Blank entries
// are skipped.
func (o *Orchestrator) Crawl(ctx context.Context, urls []string) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	targets := make([]string, 0, len(urls))
	for _, raw := range urls {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}

	results := make([]Result, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency())

	for i, target := range targets {
		if groupCtx.Err() != nil {
			results[i] = Result{URL: target, Status: core.CrawlCancelled, Message: groupCtx.Err().Error()}
			continue
		}
		group.Go(func() error {
			outcome, err := o.Pipeline.Do(groupCtx, target, o.Fetch)
			results[i] = classify(target, outcome, err)
			if o.OnResult != nil {
				o.OnResult(results[i])
			}
			return nil
		})
	}

	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Summary counts results by status.
func Summary(results []Result) map[core.CrawlStatus]int {
	counts := make(map[core.CrawlStatus]int)
	for _, result := range results {
		counts[result.Status]++
	}
	return counts
}

func classify(target string, outcome *Outcome, err error) Result {
	result := Result{URL: target, Outcome: outcome, Status: core.CrawlOK}
	if err == nil {
		return result
	}
	result.Message = err.Error()

	var permanent *PermanentFailure
	switch {
	case errors.Is(err, ErrDisallowed):
		result.Status = core.CrawlDisallowed
	case errors.As(err, &permanent):
		result.Status = core.CrawlThrottled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Status = core.CrawlCancelled
	default:
		result.Status = core.CrawlFailed
	}
	return result
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrency
}
