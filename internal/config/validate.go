package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
)

var (
	ErrInvalidRate              = errors.New("rate must be a positive number")
	ErrInvalidBurst             = errors.New("burst must not be negative")
	ErrInvalidDelayBounds       = errors.New("delay bounds are invalid")
	ErrInvalidRetries           = errors.New("max_retries must not be negative")
	ErrInvalidTargetConcurrency = errors.New("adaptive.target_concurrency must be positive")
	ErrInvalidDomainKey         = errors.New("pacing.domain_key must be host or registrable")
	ErrInvalidConcurrency       = errors.New("fetch.concurrency must be positive")
	ErrInvalidStatusCode        = errors.New("status codes must be valid HTTP statuses")
)

// Validate rejects settings the pacing engine cannot run with.
func (c *Config) Validate() error {
	if !positive(c.Pacing.DefaultRateLimit) {
		return fmt.Errorf("pacing.default_rate_limit %v: %w", c.Pacing.DefaultRateLimit, ErrInvalidRate)
	}
	if !positive(c.Pacing.BurstMultiplier) {
		return fmt.Errorf("pacing.burst_multiplier %v: %w", c.Pacing.BurstMultiplier, ErrInvalidRate)
	}
	if _, err := core.ParseKeyMode(c.Pacing.DomainKey); err != nil {
		return fmt.Errorf("%q: %w", c.Pacing.DomainKey, ErrInvalidDomainKey)
	}
	for _, o := range c.Pacing.Overrides {
		if strings.TrimSpace(o.Domain) == "" {
			return fmt.Errorf("pacing.overrides: domain is required")
		}
		if !positive(o.Rate) {
			return fmt.Errorf("pacing.overrides[%s] rate %v: %w", o.Domain, o.Rate, ErrInvalidRate)
		}
		if o.Burst < 0 {
			return fmt.Errorf("pacing.overrides[%s] burst %d: %w", o.Domain, o.Burst, ErrInvalidBurst)
		}
	}

	if c.Backoff.BaseDelay <= 0 || c.Backoff.MaxDelay <= 0 || c.Backoff.BaseDelay > c.Backoff.MaxDelay {
		return fmt.Errorf("backoff base_delay %s max_delay %s: %w", c.Backoff.BaseDelay, c.Backoff.MaxDelay, ErrInvalidDelayBounds)
	}
	if c.Backoff.MaxRetries < 0 {
		return fmt.Errorf("backoff.max_retries %d: %w", c.Backoff.MaxRetries, ErrInvalidRetries)
	}

	if !positive(c.Adaptive.TargetConcurrency) {
		return fmt.Errorf("%v: %w", c.Adaptive.TargetConcurrency, ErrInvalidTargetConcurrency)
	}
	if c.Adaptive.MinDelay < 0 || (c.Adaptive.MaxDelay > 0 && c.Adaptive.MinDelay > c.Adaptive.MaxDelay) {
		return fmt.Errorf("adaptive min_delay %s max_delay %s: %w", c.Adaptive.MinDelay, c.Adaptive.MaxDelay, ErrInvalidDelayBounds)
	}

	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("%d: %w", c.Fetch.Concurrency, ErrInvalidConcurrency)
	}

	for _, code := range c.Detector.StatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("detector.status_codes %d: %w", code, ErrInvalidStatusCode)
		}
	}
	for _, entry := range c.Detector.DomainStatusCodes {
		for _, code := range entry.Codes {
			if code < 100 || code > 599 {
				return fmt.Errorf("detector.domain_status_codes[%s] %d: %w", entry.Domain, code, ErrInvalidStatusCode)
			}
		}
	}
	return nil
}

// EngineSettings converts the pacing sections into engine settings.
// Override and per-domain status keys are normalized with the configured
// domain key mode so they match the keys the pipeline derives from URLs.
func (c *Config) EngineSettings() (engine.Settings, error) {
	mode, err := core.ParseKeyMode(c.Pacing.DomainKey)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("%q: %w", c.Pacing.DomainKey, ErrInvalidDomainKey)
	}

	settings := engine.Settings{
		KeyMode:         mode,
		Rate:            c.Pacing.DefaultRateLimit,
		BurstMultiplier: c.Pacing.BurstMultiplier,
		BaseDelay:       c.Backoff.BaseDelay,
		MaxDelay:        c.Backoff.MaxDelay,
		MaxRetries:      c.Backoff.MaxRetries,
		Adaptive: engine.AdaptiveConfig{
			Enabled:           c.Adaptive.Enabled,
			TargetConcurrency: c.Adaptive.TargetConcurrency,
			StartDelay:        c.Adaptive.StartDelay,
			MinDelay:          c.Adaptive.MinDelay,
			MaxDelay:          c.Adaptive.MaxDelay,
			Window:            c.Adaptive.Window,
		},
		Detector: engine.DetectorConfig{
			StatusCodes:   c.Detector.StatusCodes,
			BodyPhrases:   c.Detector.BodyPhrases,
			VendorMarkers: c.Detector.VendorMarkers,
			BodyPrefix:    c.Detector.BodyPrefixBytes,
		},
	}

	if len(c.Pacing.Overrides) > 0 {
		settings.Overrides = make(map[string]engine.DomainLimit, len(c.Pacing.Overrides))
		for _, o := range c.Pacing.Overrides {
			settings.Overrides[core.HostKey(o.Domain, mode)] = engine.DomainLimit{Rate: o.Rate, Burst: o.Burst}
		}
	}
	if len(c.Detector.DomainStatusCodes) > 0 {
		settings.Detector.DomainStatusCodes = make(map[string][]int, len(c.Detector.DomainStatusCodes))
		for _, entry := range c.Detector.DomainStatusCodes {
			key := core.HostKey(entry.Domain, mode)
			settings.Detector.DomainStatusCodes[key] = append(settings.Detector.DomainStatusCodes[key], entry.Codes...)
		}
	}
	return settings, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
