package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPacer(clock *fakeClock, rate float64, adaptive *Adaptive) *Pacer {
	admission := newTestAdmission(clock, rate)
	return &Pacer{Admission: admission, Adaptive: adaptive, Clock: clock.Now, Sleep: clock.Sleep}
}

func TestPacerAdmissionOnly(t *testing.T) {
	clock := newFakeClock()
	p := newTestPacer(clock, 1, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		wait, err := p.Wait(ctx, "example.com", 0)
		require.NoError(t, err)
		require.Zero(t, wait)
	}
	wait, err := p.Wait(ctx, "example.com", 0)
	require.NoError(t, err)
	require.Equal(t, time.Second, wait)
}

func TestPacerCrawlDelayDominates(t *testing.T) {
	clock := newFakeClock()
	p := newTestPacer(clock, 1, nil)
	ctx := context.Background()

	wait, err := p.Wait(ctx, "example.com", 5*time.Second)
	require.NoError(t, err)
	require.Zero(t, wait)

	for i := 0; i < 3; i++ {
		wait, err = p.Wait(ctx, "example.com", 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, wait)
	}
}

func TestPacerTakesMaximumNotSum(t *testing.T) {
	clock := newFakeClock()
	p := newTestPacer(clock, 1, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Wait(ctx, "example.com", 0)
		require.NoError(t, err)
	}
	wait, err := p.Wait(ctx, "example.com", time.Second)
	require.NoError(t, err)
	require.Equal(t, time.Second, wait)
}

func TestPacerAdaptiveDelay(t *testing.T) {
	clock := newFakeClock()
	adaptive := NewAdaptive(AdaptiveConfig{Enabled: true, StartDelay: 3 * time.Second})
	p := newTestPacer(clock, 10, adaptive)
	ctx := context.Background()

	wait, err := p.Wait(ctx, "example.com", 0)
	require.NoError(t, err)
	require.Zero(t, wait)

	wait, err = p.Wait(ctx, "example.com", time.Second)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, wait)

	wait, err = p.Wait(ctx, "other.example", 0)
	require.NoError(t, err)
	require.Zero(t, wait)
}

func TestPacerGapMeasuredFromLastDispatch(t *testing.T) {
	clock := newFakeClock()
	p := newTestPacer(clock, 10, nil)
	ctx := context.Background()

	_, err := p.Wait(ctx, "example.com", 2*time.Second)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)

	wait, err := p.Wait(ctx, "example.com", 2*time.Second)
	require.NoError(t, err)
	require.Zero(t, wait)
}

func TestPacerCancelReleasesSlotAndToken(t *testing.T) {
	clock := newFakeClock()
	p := newTestPacer(clock, 1, nil)

	_, err := p.Wait(context.Background(), "example.com", 0)
	require.NoError(t, err)
	before := p.Admission.DomainSnapshot("example.com")

	clock.block = true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx, "example.com", 10*time.Second)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(clock.Sleeps()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	after := p.Admission.DomainSnapshot("example.com")
	require.Equal(t, before.Acquisitions, after.Acquisitions)
	require.InDelta(t, before.AvailableTokens, after.AvailableTokens, 1e-9)

	clock.block = false
	clock.Advance(10 * time.Second)
	wait, err := p.Wait(context.Background(), "example.com", 10*time.Second)
	require.NoError(t, err)
	require.Zero(t, wait)
}
