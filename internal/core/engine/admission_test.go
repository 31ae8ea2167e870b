package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAdmission(clock *fakeClock, rate float64) *Admission {
	a := NewAdmission(rate, nil)
	a.Clock = clock.Now
	a.Sleep = clock.Sleep
	return a
}

func TestAdmissionBurstThenWait(t *testing.T) {
	clock := newFakeClock()
	a := newTestAdmission(clock, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		waited, err := a.Acquire(ctx, "example.com")
		require.NoError(t, err)
		require.Zero(t, waited)
	}

	waited, err := a.Acquire(ctx, "example.com")
	require.NoError(t, err)
	require.GreaterOrEqual(t, waited, time.Second)

	stats := a.DomainSnapshot("example.com")
	require.NotNil(t, stats)
	require.Equal(t, 2, stats.Capacity)
	require.Equal(t, 1.0, stats.Rate)
	require.EqualValues(t, 3, stats.Acquisitions)
	require.Equal(t, waited, stats.TotalWait)
	require.Equal(t, waited/3, stats.AverageWait)
}

func TestAdmissionCapacityScalesWithRate(t *testing.T) {
	clock := newFakeClock()
	a := newTestAdmission(clock, 5)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		waited, err := a.Acquire(ctx, "fast.example")
		require.NoError(t, err)
		require.Zero(t, waited)
	}

	waited, err := a.Acquire(ctx, "fast.example")
	require.NoError(t, err)
	require.GreaterOrEqual(t, waited, 200*time.Millisecond)
}

func TestAdmissionDomainIsolation(t *testing.T) {
	clock := newFakeClock()
	a := newTestAdmission(clock, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.Acquire(ctx, "a.example")
		require.NoError(t, err)
	}

	waited, err := a.Acquire(ctx, "b.example")
	require.NoError(t, err)
	require.Zero(t, waited)
}

func TestAdmissionConcurrentDomainsDoNotBlock(t *testing.T) {
	a := NewAdmission(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 2; i++ {
		_, err := a.Acquire(ctx, "slow.example")
		require.NoError(t, err)
	}

	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		_, _ = a.Acquire(ctx, "slow.example")
	}()

	start := time.Now()
	_, err := a.Acquire(ctx, "other.example")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	cancel()
	<-blocked
}

func TestAdmissionCancelledWaitRestoresToken(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	a := newTestAdmission(clock, 1)

	for i := 0; i < 2; i++ {
		_, err := a.Acquire(context.Background(), "example.com")
		require.NoError(t, err)
	}
	before := a.DomainSnapshot("example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Acquire(ctx, "example.com")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(clock.Sleeps()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	after := a.DomainSnapshot("example.com")
	require.Equal(t, before.Acquisitions, after.Acquisitions)
	require.Equal(t, before.TotalWait, after.TotalWait)
	require.InDelta(t, before.AvailableTokens, after.AvailableTokens, 1e-9)

	clock.block = false
	clock.Advance(time.Second)
	waited, err := a.Acquire(context.Background(), "example.com")
	require.NoError(t, err)
	require.Zero(t, waited)
}

func TestAdmissionCancelledBeforeStart(t *testing.T) {
	a := NewAdmission(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Acquire(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, a.DomainSnapshot("example.com"))
}

func TestAdmissionOverrides(t *testing.T) {
	clock := newFakeClock()
	a := NewAdmission(1, map[string]DomainLimit{
		"api.strict.example": {Rate: 0.5, Burst: 1},
		"":                   {Rate: 10},
		"bad.example":        {Rate: -1},
	})
	a.Clock = clock.Now
	a.Sleep = clock.Sleep
	ctx := context.Background()

	waited, err := a.Acquire(ctx, "api.strict.example")
	require.NoError(t, err)
	require.Zero(t, waited)

	waited, err = a.Acquire(ctx, "api.strict.example")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, waited)

	require.Equal(t, DomainLimit{Rate: 1, Burst: 2}, a.Limit("bad.example"))
}

func TestAdmissionSetOverrideRetunesExistingBucket(t *testing.T) {
	clock := newFakeClock()
	a := newTestAdmission(clock, 1)
	ctx := context.Background()

	_, err := a.Acquire(ctx, "example.com")
	require.NoError(t, err)

	require.NoError(t, a.SetOverride("Example.com", 4, 0))
	stats := a.DomainSnapshot("example.com")
	require.Equal(t, 4.0, stats.Rate)
	require.Equal(t, 8, stats.Capacity)

	require.Error(t, a.SetOverride("example.com", 0, 0))
	require.Error(t, a.SetOverride(" ", 1, 0))
}

func TestAdmissionSerializesSameDomain(t *testing.T) {
	clock := newFakeClock()
	a := newTestAdmission(clock, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Acquire(ctx, "example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats := a.DomainSnapshot("example.com")
	require.EqualValues(t, 6, stats.Acquisitions)
	require.GreaterOrEqual(t, stats.AvailableTokens, 0.0)
	require.LessOrEqual(t, stats.AvailableTokens, float64(stats.Capacity))
}

func TestAdmissionSnapshotSorted(t *testing.T) {
	a := NewAdmission(1, nil)
	for _, domain := range []string{"b.example", "a.example", "c.example"} {
		_, err := a.Acquire(context.Background(), domain)
		require.NoError(t, err)
	}
	snapshot := a.Snapshot()
	require.Len(t, snapshot, 3)
	require.Equal(t, "a.example", snapshot[0].Domain)
	require.Equal(t, "c.example", snapshot[2].Domain)
}
