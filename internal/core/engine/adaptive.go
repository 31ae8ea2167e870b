package engine

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core"
)

const (
	DefaultTargetConcurrency = 2.0
	DefaultAdaptiveStart     = time.Second
	DefaultAdaptiveMax       = 60 * time.Second
	DefaultLatencyWindow     = 10
)

// AdaptiveConfig configures the latency-driven throttler.
type AdaptiveConfig struct {
	Enabled           bool
	TargetConcurrency float64
	StartDelay        time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	Window            int
}

// Adaptive retunes a per-domain delay from observed latency:
// target = median(window) / TargetConcurrency, then
// current = (current + target) / 2, clamped to [MinDelay, MaxDelay].
// When disabled, Delay returns zero and RecordLatency does nothing.
type Adaptive struct {
	Logger Logger

	cfg     AdaptiveConfig
	domains registry[adaptiveState]
}

type adaptiveState struct {
	mu      sync.Mutex
	current time.Duration
	samples []time.Duration
	next    int
	filled  bool
}

// NewAdaptive applies defaults to zero-valued fields of cfg.
func NewAdaptive(cfg AdaptiveConfig) *Adaptive {
	if cfg.TargetConcurrency <= 0 {
		cfg.TargetConcurrency = DefaultTargetConcurrency
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = DefaultAdaptiveStart
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultAdaptiveMax
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultLatencyWindow
	}
	return &Adaptive{cfg: cfg}
}

// Enabled reports whether adaptive pacing is active.
func (a *Adaptive) Enabled() bool {
	return a != nil && a.cfg.Enabled
}

// Config returns the effective configuration.
func (a *Adaptive) Config() AdaptiveConfig {
	return a.cfg
}

// RecordLatency feeds one completed-fetch latency into the domain's window.
// Non-positive samples are ignored.
func (a *Adaptive) RecordLatency(domain string, elapsed time.Duration) {
	if !a.Enabled() || elapsed <= 0 {
		return
	}

	state := a.domains.getOrCreate(domain, func() *adaptiveState {
		return &adaptiveState{
			current: a.clamp(a.cfg.StartDelay),
			samples: make([]time.Duration, a.cfg.Window),
		}
	})

	state.mu.Lock()
	state.samples[state.next] = elapsed
	state.next = (state.next + 1) % len(state.samples)
	if state.next == 0 {
		state.filled = true
	}
	target := time.Duration(float64(state.median()) / a.cfg.TargetConcurrency)
	previous := state.current
	state.current = a.clamp((state.current + target) / 2)
	current := state.current
	state.mu.Unlock()

	loggerOrNop(a.Logger).Debug("Adaptive delay updated",
		zap.String("domain", domain),
		zap.Duration("latency", elapsed),
		zap.Duration("previous", previous),
		zap.Duration("delay", current),
	)
}

// Delay returns the domain's current inter-request delay.
func (a *Adaptive) Delay(domain string) time.Duration {
	if !a.Enabled() {
		return 0
	}
	state, ok := a.domains.get(domain)
	if !ok {
		return a.clamp(a.cfg.StartDelay)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.current
}

// DomainSnapshot returns the controller state for one domain, or nil.
func (a *Adaptive) DomainSnapshot(domain string) *core.AdaptiveStats {
	if !a.Enabled() {
		return nil
	}
	state, ok := a.domains.get(domain)
	if !ok {
		return nil
	}
	return a.stats(domain, state)
}

// Snapshot returns every domain that has recorded latency.
func (a *Adaptive) Snapshot() []core.AdaptiveStats {
	out := make([]core.AdaptiveStats, 0)
	if !a.Enabled() {
		return out
	}
	a.domains.each(func(domain string, state *adaptiveState) {
		out = append(out, *a.stats(domain, state))
	})
	return out
}

func (a *Adaptive) stats(domain string, state *adaptiveState) *core.AdaptiveStats {
	state.mu.Lock()
	defer state.mu.Unlock()
	return &core.AdaptiveStats{
		Domain:            domain,
		CurrentDelay:      state.current,
		MedianLatency:     state.median(),
		Samples:           state.count(),
		TargetConcurrency: a.cfg.TargetConcurrency,
	}
}

func (a *Adaptive) clamp(d time.Duration) time.Duration {
	if d < a.cfg.MinDelay {
		return a.cfg.MinDelay
	}
	if d > a.cfg.MaxDelay {
		return a.cfg.MaxDelay
	}
	return d
}

func (s *adaptiveState) count() int {
	if s.filled {
		return len(s.samples)
	}
	return s.next
}

// median requires s.mu.
func (s *adaptiveState) median() time.Duration {
	n := s.count()
	if n == 0 {
		return 0
	}
	window := make([]time.Duration, n)
	copy(window, s.samples[:n])
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	if n%2 == 1 {
		return window[n/2]
	}
	return (window[n/2-1] + window[n/2]) / 2
}
