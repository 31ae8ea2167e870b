package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core"
)

// FetchFunc performs one network fetch. The pipeline never retries a
// transport error; that policy belongs to the caller.
type FetchFunc func(ctx context.Context, rawURL string) (*core.Response, error)

// RobotsPolicy gates URLs and supplies a crawl-delay. Implementations fail
// open: an unreachable robots.txt allows everything without delay.
type RobotsPolicy interface {
	Check(ctx context.Context, rawURL string) (allowed bool, crawlDelay time.Duration, err error)
}

// EventSink receives every throttling detection.
type EventSink interface {
	RecordThrottleEvent(ctx context.Context, event core.ThrottleEvent) error
}

// Outcome describes one URL's fetch cycle.
type Outcome struct {
	URL           string           `json:"url"`
	Domain        string           `json:"domain"`
	Response      *core.Response   `json:"-"`
	StatusCode    int              `json:"status_code"`
	Attempts      int              `json:"attempts"`
	PacingWait    time.Duration    `json:"pacing_wait"`
	BackoffWait   time.Duration    `json:"backoff_wait"`
	Detections    []core.Detection `json:"detections,omitempty"`
	Latency       time.Duration    `json:"latency"`
	CrawlDelay    time.Duration    `json:"crawl_delay,omitempty"`
	FirstAttempt  time.Time        `json:"first_attempt"`
	LastAttemptAt time.Time        `json:"last_attempt"`
}

// PermanentFailure reports that a URL stayed throttled through every retry.
type PermanentFailure struct {
	URL      string
	Domain   string
	Attempts int
	Last     core.Detection
	Err      error
}

func (e *PermanentFailure) Error() string {
	return fmt.Sprintf("%s: still throttled after %d attempts (last signal %s): %v", e.URL, e.Attempts, e.Last.Source, e.Err)
}

func (e *PermanentFailure) Unwrap() error {
	return e.Err
}

// Pipeline runs the per-URL cycle: robots check, pacing, fetch, detection,
// backoff and retry, and latency feedback on success.
type Pipeline struct {
	KeyMode  core.KeyMode
	Robots   RobotsPolicy
	Pacer    *Pacer
	Adaptive *Adaptive
	Detector *Detector
	Backoff  *Backoff
	Signals  *Signals
	Events   EventSink
	Clock    func() time.Time
	Sleep    SleepFunc
	Logger   Logger
}

// Do fetches rawURL through fetch under the pacing policy. It returns
// ErrDisallowed when robots forbids the URL and a *PermanentFailure when
// retries run out. The returned Outcome is non-nil whenever at least one
// fetch was attempted.
func (p *Pipeline) Do(ctx context.Context, rawURL string, fetch FetchFunc) (*Outcome, error) {
	domain, err := core.DomainKey(rawURL, p.KeyMode)
	if err != nil {
		return nil, err
	}
	logger := loggerOrNop(p.Logger)

	var crawlDelay time.Duration
	if p.Robots != nil {
		allowed, delay, err := p.Robots.Check(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check %s: %w", rawURL, err)
		}
		if !allowed {
			logger.Debug("URL disallowed by robots policy", zap.String("url", rawURL))
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		crawlDelay = delay
	}

	outcome := &Outcome{URL: rawURL, Domain: domain, CrawlDelay: crawlDelay, FirstAttempt: p.now()}
	for attempt := 0; ; attempt++ {
		waited, err := p.Pacer.Wait(ctx, domain, crawlDelay)
		if err != nil {
			return outcome, err
		}
		outcome.PacingWait += waited

		start := p.now()
		resp, err := fetch(ctx, rawURL)
		elapsed := p.now().Sub(start)
		outcome.Attempts++
		outcome.LastAttemptAt = start
		if err != nil {
			return outcome, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if resp == nil {
			return outcome, fmt.Errorf("fetch %s: no response", rawURL)
		}
		outcome.Response = resp
		outcome.StatusCode = resp.StatusCode

		det := p.Detector.Detect(domain, *resp)
		if !det.RateLimited {
			outcome.Latency = elapsed
			p.Adaptive.RecordLatency(domain, elapsed)
			return outcome, nil
		}

		outcome.Detections = append(outcome.Detections, det)
		p.record(ctx, domain, rawURL, resp.StatusCode, attempt, det)

		delay, err := p.Backoff.Delay(attempt, det.Hint())
		if err != nil {
			logger.Warn("Giving up on throttled URL",
				zap.String("url", rawURL),
				zap.String("domain", domain),
				zap.Int("attempts", outcome.Attempts),
			)
			return outcome, &PermanentFailure{
				URL:      rawURL,
				Domain:   domain,
				Attempts: outcome.Attempts,
				Last:     det,
				Err:      err,
			}
		}

		logger.Info("Rate limit detected, backing off",
			zap.String("url", rawURL),
			zap.String("domain", domain),
			zap.Int("status", resp.StatusCode),
			zap.String("source", string(det.Source)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := sleepWith(p.Sleep, ctx, delay); err != nil {
			return outcome, err
		}
		outcome.BackoffWait += delay
	}
}

func (p *Pipeline) record(ctx context.Context, domain, rawURL string, status, attempt int, det core.Detection) {
	if p.Signals != nil {
		p.Signals.Record(domain, det)
	}
	if p.Events == nil {
		return
	}
	event := core.ThrottleEvent{
		Domain:     domain,
		URL:        rawURL,
		StatusCode: status,
		Source:     det.Source,
		RetryAfter: det.RetryAfter,
		Attempt:    attempt,
		DetectedAt: p.now(),
	}
	if err := p.Events.RecordThrottleEvent(ctx, event); err != nil {
		loggerOrNop(p.Logger).Warn("Failed to record throttle event",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) now() time.Time {
	return nowFrom(p.Clock)
}
