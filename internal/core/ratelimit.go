package core

import "time"

// AdmissionStats is a read-only view of one domain's token bucket.
type AdmissionStats struct {
	Domain          string        `json:"domain"`
	Rate            float64       `json:"rate"`
	Capacity        int           `json:"capacity"`
	AvailableTokens float64       `json:"available_tokens"`
	Acquisitions    int64         `json:"acquisitions"`
	TotalWait       time.Duration `json:"total_wait"`
	AverageWait     time.Duration `json:"average_wait"`
}

// SignalStats summarizes throttling detected for one domain.
type SignalStats struct {
	Domain            string          `json:"domain"`
	Detections        int64           `json:"detections"`
	LastSource        DetectionSource `json:"last_source,omitempty"`
	LastDetectedAt    *time.Time      `json:"last_detected_at,omitempty"`
	SinceLastDetected *time.Duration  `json:"since_last_detected,omitempty"`
}

// AdaptiveStats exposes the adaptive controller state for one domain.
type AdaptiveStats struct {
	Domain            string        `json:"domain"`
	CurrentDelay      time.Duration `json:"current_delay"`
	MedianLatency     time.Duration `json:"median_latency"`
	Samples           int           `json:"samples"`
	TargetConcurrency float64       `json:"target_concurrency"`
}

// RobotsStats reports robots cache effectiveness.
type RobotsStats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	FetchFailures int64 `json:"fetch_failures"`
}

// DomainDiagnostics joins every per-domain view.
type DomainDiagnostics struct {
	Domain    string          `json:"domain"`
	Admission *AdmissionStats `json:"admission,omitempty"`
	Signals   *SignalStats    `json:"signals,omitempty"`
	Adaptive  *AdaptiveStats  `json:"adaptive,omitempty"`
}

// Diagnostics is the operator-facing snapshot of the pacing subsystem.
type Diagnostics struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	AdaptiveEnabled bool                `json:"adaptive_enabled"`
	Domains         []DomainDiagnostics `json:"domains"`
	Robots          RobotsStats         `json:"robots"`
}
