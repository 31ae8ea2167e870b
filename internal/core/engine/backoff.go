package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
	DefaultMaxRetries = 5
)

// Backoff computes retry delays: exponential growth with up to one second
// of additive jitter, capped at MaxDelay. A positive server hint replaces
// the algorithmic delay but is still capped.
type Backoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	// Jitter returns a value in [0, 1). Defaults to math/rand/v2.
	Jitter func() float64
}

// BackoffWindow is the range of algorithmic delays for one attempt.
type BackoffWindow struct {
	Attempt int           `json:"attempt"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
}

// NewBackoff returns a policy, substituting defaults for non-positive bounds.
func NewBackoff(base, maxDelay time.Duration, maxRetries int) *Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Backoff{BaseDelay: base, MaxDelay: maxDelay, MaxRetries: maxRetries}
}

// Delay returns the wait before retry number attempt (0-indexed). It returns
// ErrRetriesExhausted once attempt reaches MaxRetries.
//
// MaxRetries counts retries, not fetches: with MaxRetries=5 there are five
// delays and a request is fetched at most six times. A caller that wants the
// request to fail on the fifth throttled fetch sets MaxRetries to 4.
func (b *Backoff) Delay(attempt int, hint time.Duration) (time.Duration, error) {
	if attempt < 0 {
		return 0, fmt.Errorf("backoff attempt must not be negative: %d", attempt)
	}
	if attempt >= b.MaxRetries {
		return 0, fmt.Errorf("attempt %d of %d: %w", attempt+1, b.MaxRetries, ErrRetriesExhausted)
	}
	if hint > 0 {
		return b.cap(hint), nil
	}
	return b.cap(b.exponential(attempt) + b.jitter()), nil
}

// Schedule lists the algorithmic delay window of every permitted retry.
func (b *Backoff) Schedule() []BackoffWindow {
	windows := make([]BackoffWindow, 0, b.MaxRetries)
	for attempt := 0; attempt < b.MaxRetries; attempt++ {
		base := b.exponential(attempt)
		windows = append(windows, BackoffWindow{
			Attempt: attempt,
			Min:     b.cap(base),
			Max:     b.cap(base + time.Second),
		})
	}
	return windows
}

func (b *Backoff) exponential(attempt int) time.Duration {
	seconds := b.base().Seconds() * math.Pow(2, float64(attempt))
	if seconds >= b.maxDelay().Seconds() || math.IsInf(seconds, 0) {
		return b.maxDelay()
	}
	return time.Duration(seconds * float64(time.Second))
}

func (b *Backoff) jitter() time.Duration {
	fn := b.Jitter
	if fn == nil {
		fn = rand.Float64
	}
	j := fn()
	if j < 0 || j >= 1 || math.IsNaN(j) {
		j = 0
	}
	return time.Duration(j * float64(time.Second))
}

func (b *Backoff) cap(d time.Duration) time.Duration {
	if limit := b.maxDelay(); d > limit {
		return limit
	}
	return d
}

func (b *Backoff) base() time.Duration {
	if b.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return b.BaseDelay
}

func (b *Backoff) maxDelay() time.Duration {
	if b.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return b.MaxDelay
}
