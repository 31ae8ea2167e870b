package core

import (
	"net/http"
	"time"
)

// DetectionSource identifies which signal marked a response as throttled.
type DetectionSource string

const (
	SourceNone          DetectionSource = ""
	SourceStatusCode    DetectionSource = "status_code"
	SourceHeader        DetectionSource = "header"
	SourceBodyPattern   DetectionSource = "body_pattern"
	SourceVendorPattern DetectionSource = "vendor_pattern"
)

// Response is the part of a completed fetch the pacing engine inspects.
// Body holds a bounded, decoded prefix of the payload and may be empty.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detection is the verdict produced for a single response.
type Detection struct {
	RateLimited bool            `json:"rate_limited"`
	RetryAfter  *time.Duration  `json:"retry_after,omitempty"`
	Source      DetectionSource `json:"source,omitempty"`
	Marker      string          `json:"marker,omitempty"`
}

// HasHint reports whether the server supplied a usable, positive retry hint.
func (d Detection) HasHint() bool {
	return d.RetryAfter != nil && *d.RetryAfter > 0
}

// Hint returns the retry hint or zero when absent.
func (d Detection) Hint() time.Duration {
	if d.RetryAfter == nil {
		return 0
	}
	return *d.RetryAfter
}

// ThrottleEvent records one detected throttling response.
type ThrottleEvent struct {
	Domain     string          `json:"domain"`
	URL        string          `json:"url"`
	StatusCode int             `json:"status_code"`
	Source     DetectionSource `json:"source"`
	RetryAfter *time.Duration  `json:"retry_after,omitempty"`
	Attempt    int             `json:"attempt"`
	DetectedAt time.Time       `json:"detected_at"`
}

// CrawlStatus is the terminal state of one URL in a batch crawl.
type CrawlStatus string

const (
	CrawlOK         CrawlStatus = "ok"
	CrawlDisallowed CrawlStatus = "disallowed"
	CrawlThrottled  CrawlStatus = "throttled"
	CrawlFailed     CrawlStatus = "failed"
	CrawlCancelled  CrawlStatus = "cancelled"
)
