package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRetriesExhausted reports that a request ran out of retry attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrDisallowed reports that robots policy forbids fetching a URL.
	ErrDisallowed = errors.New("disallowed by robots policy")
)

// Logger is the logging surface the pacing components need.
// Both *zap.Logger and the gofulmen logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var nopLogger Logger = zap.NewNop()

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger
	}
	return l
}

func nowFrom(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now().UTC()
}

func sleepWith(sleep SleepFunc, ctx context.Context, d time.Duration) error {
	if sleep != nil {
		return sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}
