package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pacer composes the per-request delay for a domain as the largest of the
// admission token wait, the adaptive delay and the robots crawl-delay.
// Adaptive and crawl delays are gaps measured from the previous dispatch
// to the same domain.
type Pacer struct {
	Admission *Admission
	Adaptive  *Adaptive
	Clock     func() time.Time
	Sleep     SleepFunc
	Logger    Logger

	slots registry[dispatchSlot]
}

type dispatchSlot struct {
	mu   sync.Mutex
	last time.Time
}

// Wait blocks until the next request to domain may be dispatched and
// returns the time spent waiting. On cancellation the admission token and
// the dispatch slot are released.
func (p *Pacer) Wait(ctx context.Context, domain string, crawlDelay time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := p.now()
	t, err := p.Admission.reserve(domain, now)
	if err != nil {
		return 0, err
	}

	gap := p.Adaptive.Delay(domain)
	if crawlDelay > gap {
		gap = crawlDelay
	}

	slot := p.slots.getOrCreate(domain, func() *dispatchSlot { return &dispatchSlot{} })
	slot.mu.Lock()
	dispatchAt := now.Add(t.wait)
	if !slot.last.IsZero() {
		if earliest := slot.last.Add(gap); earliest.After(dispatchAt) {
			dispatchAt = earliest
		}
	}
	previous := slot.last
	slot.last = dispatchAt
	slot.mu.Unlock()

	wait := dispatchAt.Sub(now)
	if wait > 0 {
		loggerOrNop(p.Logger).Debug("Pacing request",
			zap.String("domain", domain),
			zap.Duration("delay", wait),
			zap.Duration("admission", t.wait),
			zap.Duration("gap", gap),
		)
		if err := sleepWith(p.Sleep, ctx, wait); err != nil {
			p.Admission.cancel(t)
			slot.mu.Lock()
			if slot.last.Equal(dispatchAt) {
				slot.last = previous
			}
			slot.mu.Unlock()
			return 0, err
		}
	}

	p.Admission.commit(t)
	return wait, nil
}

func (p *Pacer) now() time.Time {
	return nowFrom(p.Clock)
}
