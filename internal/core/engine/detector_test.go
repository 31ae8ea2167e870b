package engine

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/core"
)

func TestDetectorRules(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	detector := NewDetector(DetectorConfig{
		DomainStatusCodes: map[string][]int{"strict.example": {403}},
	})
	detector.Clock = func() time.Time { return now }

	thirty := 30 * time.Second
	tests := []struct {
		name   string
		domain string
		resp   core.Response
		want   core.Detection
	}{
		{
			name: "TooManyRequests",
			resp: core.Response{StatusCode: 429},
			want: core.Detection{RateLimited: true, Source: core.SourceStatusCode, Marker: "429"},
		},
		{
			name: "ServiceUnavailableWithHint",
			resp: core.Response{StatusCode: 503, Header: http.Header{"Retry-After": {"30"}}},
			want: core.Detection{RateLimited: true, Source: core.SourceStatusCode, Marker: "503", RetryAfter: &thirty},
		},
		{
			name:   "DomainSpecificStatus",
			domain: "strict.example",
			resp:   core.Response{StatusCode: 403},
			want:   core.Detection{RateLimited: true, Source: core.SourceStatusCode, Marker: "403"},
		},
		{
			name: "PlainForbiddenIsNotThrottling",
			resp: core.Response{StatusCode: 403, Body: []byte("you do not have access")},
			want: core.Detection{},
		},
		{
			name: "CloudflareChallengeHeader",
			resp: core.Response{StatusCode: 403, Header: http.Header{"Cf-Mitigated": {"challenge"}}},
			want: core.Detection{RateLimited: true, Source: core.SourceVendorPattern, Marker: "cloudflare"},
		},
		{
			name: "CloudflareChallengeBody",
			resp: core.Response{
				StatusCode: 403,
				Header:     http.Header{"Server": {"cloudflare"}},
				Body:       []byte(`<script src="/cdn-cgi/challenge-platform/h/b/orchestrate"></script>`),
			},
			want: core.Detection{RateLimited: true, Source: core.SourceVendorPattern, Marker: "cloudflare"},
		},
		{
			name: "AWSWAF",
			resp: core.Response{StatusCode: 403, Header: http.Header{"X-Amzn-Waf-Action": {"captcha"}}},
			want: core.Detection{RateLimited: true, Source: core.SourceVendorPattern, Marker: "aws-waf"},
		},
		{
			name: "RetryAfterHeaderOnly",
			resp: core.Response{StatusCode: 200, Header: http.Header{"Retry-After": {"30"}}},
			want: core.Detection{RateLimited: true, Source: core.SourceHeader, Marker: "retry-after", RetryAfter: &thirty},
		},
		{
			name: "RetryAfterHTTPDate",
			resp: core.Response{StatusCode: 200, Header: http.Header{"Retry-After": {now.Add(30 * time.Second).Format(http.TimeFormat)}}},
			want: core.Detection{RateLimited: true, Source: core.SourceHeader, Marker: "retry-after", RetryAfter: &thirty},
		},
		{
			name: "MalformedRetryAfterIgnored",
			resp: core.Response{StatusCode: 200, Header: http.Header{"Retry-After": {"soon-ish"}}},
			want: core.Detection{},
		},
		{
			name: "MalformedRetryAfterOnThrottleStatus",
			resp: core.Response{StatusCode: 429, Header: http.Header{"Retry-After": {"-5"}}},
			want: core.Detection{RateLimited: true, Source: core.SourceStatusCode, Marker: "429"},
		},
		{
			name: "BodyPhraseCaseInsensitive",
			resp: core.Response{StatusCode: 200, Body: []byte("<h1>Too Many Requests</h1>")},
			want: core.Detection{RateLimited: true, Source: core.SourceBodyPattern, Marker: "too many requests"},
		},
		{
			name: "VendorBodyMarkerBeforePhrase",
			resp: core.Response{StatusCode: 403, Body: []byte("Incapsula incident ID: 123. Slow down.")},
			want: core.Detection{RateLimited: true, Source: core.SourceVendorPattern, Marker: "incapsula incident id"},
		},
		{
			name: "Latin1Body",
			resp: core.Response{
				StatusCode: 200,
				Header:     http.Header{"Content-Type": {"text/html; charset=iso-8859-1"}},
				Body:       []byte("Vous \xeates throttled"),
			},
			want: core.Detection{RateLimited: true, Source: core.SourceBodyPattern, Marker: "throttled"},
		},
		{
			name: "CloudflareScriptOnOrdinaryPage",
			resp: core.Response{
				StatusCode: 200,
				Header:     http.Header{"Server": {"cloudflare"}},
				Body:       []byte(`<html><script src="/cdn-cgi/challenge-platform/scripts/jsd/main.js"></script>hello</html>`),
			},
			want: core.Detection{},
		},
		{
			name: "VendorMarkerIgnoredOnSuccess",
			resp: core.Response{StatusCode: 200, Body: []byte("<p>Incapsula incident ID: 123</p>")},
			want: core.Detection{},
		},
		{
			name: "Ordinary",
			resp: core.Response{StatusCode: 200, Body: []byte("<html>hello</html>")},
			want: core.Detection{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Detect(tt.domain, tt.resp)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDetectorPastDateGivesNoHint(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	detector := NewDetector(DetectorConfig{})
	detector.Clock = func() time.Time { return now }

	det := detector.Detect("example.com", core.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": {now.Add(-time.Hour).Format(http.TimeFormat)}},
	})
	require.True(t, det.RateLimited)
	require.False(t, det.HasHint())
}

func TestDetectorBodyPrefixBound(t *testing.T) {
	detector := NewDetector(DetectorConfig{BodyPrefix: 16})
	body := append(make([]byte, 32), []byte("too many requests")...)
	for i := 0; i < 32; i++ {
		body[i] = 'a'
	}

	det := detector.Detect("example.com", core.Response{StatusCode: 200, Body: body})
	require.False(t, det.RateLimited)
}

func TestDetectorCustomPhrases(t *testing.T) {
	detector := NewDetector(DetectorConfig{BodyPhrases: []string{"Quota Exceeded"}, VendorMarkers: []string{}})

	det := detector.Detect("example.com", core.Response{StatusCode: 200, Body: []byte("daily QUOTA EXCEEDED")})
	require.Equal(t, core.SourceBodyPattern, det.Source)

	det = detector.Detect("example.com", core.Response{StatusCode: 200, Body: []byte("too many requests")})
	require.False(t, det.RateLimited)
}

func TestSignalsRecord(t *testing.T) {
	clock := newFakeClock()
	signals := &Signals{Clock: clock.Now}

	signals.Record("example.com", core.Detection{})
	require.Nil(t, signals.DomainSnapshot("example.com"))

	signals.Record("example.com", core.Detection{RateLimited: true, Source: core.SourceStatusCode})
	clock.Advance(5 * time.Second)
	signals.Record("example.com", core.Detection{RateLimited: true, Source: core.SourceHeader})
	clock.Advance(10 * time.Second)

	stats := signals.DomainSnapshot("example.com")
	require.NotNil(t, stats)
	require.EqualValues(t, 2, stats.Detections)
	require.Equal(t, core.SourceHeader, stats.LastSource)
	require.NotNil(t, stats.SinceLastDetected)
	require.Equal(t, 10*time.Second, *stats.SinceLastDetected)

	require.Len(t, signals.Snapshot(), 1)
}
