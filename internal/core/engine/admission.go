package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crawlpace/crawlpace/internal/core"
)

const (
	// DefaultRate is the sustained per-domain request rate in requests per second.
	DefaultRate = 1.0
	// DefaultBurstMultiplier derives bucket capacity from the rate.
	DefaultBurstMultiplier = 2.0
)

// DomainLimit is a per-domain rate override. A zero Burst derives
// capacity from the burst multiplier.
type DomainLimit struct {
	Rate  float64 `json:"rate" yaml:"rate" mapstructure:"rate"`
	Burst int     `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// Admission paces requests with one lazily refilled token bucket per domain.
// It never rejects: Acquire waits until a token is available.
type Admission struct {
	Rate            float64
	BurstMultiplier float64
	Clock           func() time.Time
	Sleep           SleepFunc
	Logger          Logger

	mu        sync.RWMutex
	overrides map[string]DomainLimit
	buckets   registry[bucket]
}

type bucket struct {
	limiter      *rate.Limiter
	acquisitions atomic.Int64
	waitNanos    atomic.Int64
}

// NewAdmission builds a controller with the given default rate and overrides.
func NewAdmission(defaultRate float64, overrides map[string]DomainLimit) *Admission {
	a := &Admission{Rate: defaultRate, BurstMultiplier: DefaultBurstMultiplier}
	a.ApplyOverrides(overrides)
	return a
}

// ApplyOverrides merges per-domain limits. Invalid entries are skipped.
func (a *Admission) ApplyOverrides(overrides map[string]DomainLimit) {
	for domain, limit := range overrides {
		_ = a.SetOverride(domain, limit.Rate, limit.Burst)
	}
}

// SetOverride sets the limit for one domain. An existing bucket is retuned
// in place so tokens already accrued are kept.
func (a *Admission) SetOverride(domain string, ratePerSecond float64, burst int) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return fmt.Errorf("override domain is required")
	}
	if ratePerSecond <= 0 || math.IsNaN(ratePerSecond) || math.IsInf(ratePerSecond, 0) {
		return fmt.Errorf("override rate for %s must be positive: %v", domain, ratePerSecond)
	}
	if burst < 0 {
		return fmt.Errorf("override burst for %s must not be negative: %d", domain, burst)
	}

	limit := DomainLimit{Rate: ratePerSecond, Burst: burst}
	a.mu.Lock()
	if a.overrides == nil {
		a.overrides = make(map[string]DomainLimit)
	}
	a.overrides[domain] = limit
	a.mu.Unlock()

	if b, ok := a.buckets.get(domain); ok {
		now := a.now()
		b.limiter.SetLimitAt(now, rate.Limit(limit.Rate))
		b.limiter.SetBurstAt(now, a.capacity(limit))
	}
	return nil
}

// Acquire waits until a token is available for domain and consumes it.
// It returns how long the caller waited. If ctx ends first, the reservation
// is cancelled, no token is consumed and statistics are left unchanged.
func (a *Admission) Acquire(ctx context.Context, domain string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ticket, err := a.reserve(domain, a.now())
	if err != nil {
		return 0, err
	}
	if ticket.wait > 0 {
		loggerOrNop(a.Logger).Debug("Waiting for admission token",
			zap.String("domain", domain),
			zap.Duration("delay", ticket.wait),
		)
		if err := sleepWith(a.Sleep, ctx, ticket.wait); err != nil {
			a.cancel(ticket)
			return 0, err
		}
	}
	a.commit(ticket)
	return ticket.wait, nil
}

// ticket is a reserved but not yet committed token.
type ticket struct {
	bucket      *bucket
	reservation *rate.Reservation
	wait        time.Duration
}

func (a *Admission) reserve(domain string, now time.Time) (*ticket, error) {
	b := a.bucket(domain)
	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return nil, fmt.Errorf("admission for %s: bucket cannot grant a token", domain)
	}
	return &ticket{bucket: b, reservation: reservation, wait: reservation.DelayFrom(now)}, nil
}

func (a *Admission) commit(t *ticket) {
	t.bucket.acquisitions.Add(1)
	t.bucket.waitNanos.Add(int64(t.wait))
}

func (a *Admission) cancel(t *ticket) {
	t.reservation.CancelAt(a.now())
}

// Limit returns the effective limit for domain.
func (a *Admission) Limit(domain string) DomainLimit {
	limit := DomainLimit{Rate: a.defaultRate()}
	a.mu.RLock()
	if override, ok := a.overrides[domain]; ok {
		limit = override
	}
	a.mu.RUnlock()
	limit.Burst = a.capacity(limit)
	return limit
}

// DomainSnapshot reports the bucket for one domain, or nil when the domain
// has never been seen.
func (a *Admission) DomainSnapshot(domain string) *core.AdmissionStats {
	b, ok := a.buckets.get(domain)
	if !ok {
		return nil
	}
	return a.stats(domain, b)
}

// Snapshot reports every known domain in lexical order.
func (a *Admission) Snapshot() []core.AdmissionStats {
	out := make([]core.AdmissionStats, 0)
	a.buckets.each(func(domain string, b *bucket) {
		out = append(out, *a.stats(domain, b))
	})
	return out
}

func (a *Admission) stats(domain string, b *bucket) *core.AdmissionStats {
	acquisitions := b.acquisitions.Load()
	total := time.Duration(b.waitNanos.Load())
	var average time.Duration
	if acquisitions > 0 {
		average = total / time.Duration(acquisitions)
	}
	tokens := b.limiter.TokensAt(a.now())
	if tokens < 0 {
		tokens = 0
	}
	return &core.AdmissionStats{
		Domain:          domain,
		Rate:            float64(b.limiter.Limit()),
		Capacity:        b.limiter.Burst(),
		AvailableTokens: tokens,
		Acquisitions:    acquisitions,
		TotalWait:       total,
		AverageWait:     average,
	}
}

func (a *Admission) bucket(domain string) *bucket {
	return a.buckets.getOrCreate(domain, func() *bucket {
		limit := a.Limit(domain)
		return &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	})
}

func (a *Admission) capacity(limit DomainLimit) int {
	if limit.Burst > 0 {
		return limit.Burst
	}
	multiplier := a.BurstMultiplier
	if multiplier <= 0 {
		multiplier = DefaultBurstMultiplier
	}
	capacity := int(math.Ceil(limit.Rate * multiplier))
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

func (a *Admission) defaultRate() float64 {
	if a.Rate <= 0 {
		return DefaultRate
	}
	return a.Rate
}

func (a *Admission) now() time.Time {
	return nowFrom(a.Clock)
}
