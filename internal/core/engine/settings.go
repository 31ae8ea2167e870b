package engine

import (
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
)

// Settings gathers the tunables for a pacing pipeline.
type Settings struct {
	KeyMode         core.KeyMode
	Rate            float64
	BurstMultiplier float64
	Overrides       map[string]DomainLimit
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxRetries      int
	Adaptive        AdaptiveConfig
	Detector        DetectorConfig
}

// DefaultSettings mirrors the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		KeyMode:         core.KeyHost,
		Rate:            DefaultRate,
		BurstMultiplier: DefaultBurstMultiplier,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		MaxRetries:      DefaultMaxRetries,
		Adaptive: AdaptiveConfig{
			TargetConcurrency: DefaultTargetConcurrency,
			StartDelay:        DefaultAdaptiveStart,
			MaxDelay:          DefaultAdaptiveMax,
			Window:            DefaultLatencyWindow,
		},
	}
}

// New wires a pipeline from settings. Robots and Events are left for the
// caller to attach.
func New(settings Settings, logger Logger) *Pipeline {
	admission := NewAdmission(settings.Rate, settings.Overrides)
	admission.BurstMultiplier = settings.BurstMultiplier
	admission.Logger = logger

	adaptive := NewAdaptive(settings.Adaptive)
	adaptive.Logger = logger

	return &Pipeline{
		KeyMode:  settings.KeyMode,
		Pacer:    &Pacer{Admission: admission, Adaptive: adaptive, Logger: logger},
		Adaptive: adaptive,
		Detector: NewDetector(settings.Detector),
		Backoff:  NewBackoff(settings.BaseDelay, settings.MaxDelay, settings.MaxRetries),
		Signals:  &Signals{},
		Logger:   logger,
	}
}

// WithClock points every component at the same clock and sleep hooks.
func (p *Pipeline) WithClock(clock func() time.Time, sleep SleepFunc) *Pipeline {
	p.Clock = clock
	p.Sleep = sleep
	if p.Pacer != nil {
		p.Pacer.Clock = clock
		p.Pacer.Sleep = sleep
		if p.Pacer.Admission != nil {
			p.Pacer.Admission.Clock = clock
			p.Pacer.Admission.Sleep = sleep
		}
	}
	if p.Detector != nil {
		p.Detector.Clock = clock
	}
	if p.Signals != nil {
		p.Signals.Clock = clock
	}
	return p
}
