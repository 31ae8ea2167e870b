package metrics

import (
	"context"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
)

// EventSink counts detections and forwards them to Next when set.
type EventSink struct {
	Next engine.EventSink
}

// RecordThrottleEvent implements engine.EventSink.
func (s EventSink) RecordThrottleEvent(ctx context.Context, event core.ThrottleEvent) error {
	RecordDetection(event.Source)
	if s.Next == nil {
		return nil
	}
	return s.Next.RecordThrottleEvent(ctx, event)
}
