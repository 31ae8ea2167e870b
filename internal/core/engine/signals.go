package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
)

// Signals counts throttling detections per domain for diagnostics.
type Signals struct {
	Clock func() time.Time

	domains registry[signalState]
}

type signalState struct {
	detections atomic.Int64

	mu         sync.Mutex
	lastAt     time.Time
	lastSource core.DetectionSource
}

// Record notes a detection for domain. Non-throttled results are ignored.
func (s *Signals) Record(domain string, det core.Detection) {
	if !det.RateLimited {
		return
	}
	state := s.domains.getOrCreate(domain, func() *signalState { return &signalState{} })
	state.detections.Add(1)

	at := nowFrom(s.Clock)
	state.mu.Lock()
	if at.After(state.lastAt) {
		state.lastAt = at
		state.lastSource = det.Source
	}
	state.mu.Unlock()
}

// DomainSnapshot returns the statistics for one domain, or nil.
func (s *Signals) DomainSnapshot(domain string) *core.SignalStats {
	state, ok := s.domains.get(domain)
	if !ok {
		return nil
	}
	return state.stats(domain, nowFrom(s.Clock))
}

// Snapshot returns statistics for every domain with at least one detection.
func (s *Signals) Snapshot() []core.SignalStats {
	now := nowFrom(s.Clock)
	out := make([]core.SignalStats, 0)
	s.domains.each(func(domain string, state *signalState) {
		out = append(out, *state.stats(domain, now))
	})
	return out
}

func (st *signalState) stats(domain string, now time.Time) *core.SignalStats {
	stats := &core.SignalStats{Domain: domain, Detections: st.detections.Load()}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.lastAt.IsZero() {
		last := st.lastAt
		since := now.Sub(last)
		if since < 0 {
			since = 0
		}
		stats.LastDetectedAt = &last
		stats.SinceLastDetected = &since
		stats.LastSource = st.lastSource
	}
	return stats
}
