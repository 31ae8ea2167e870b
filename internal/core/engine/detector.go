package engine

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/cases"

	"github.com/crawlpace/crawlpace/internal/core"
)

// DefaultBodyPrefix bounds how much of a body is scanned for phrases.
const DefaultBodyPrefix = 64 * 1024

const maxHintSeconds = int64(math.MaxInt64 / int64(time.Second))

// DefaultStatusCodes are the statuses treated as throttling on every domain.
var DefaultStatusCodes = []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}

// DefaultBodyPhrases are generic throttling phrases matched case-insensitively.
var DefaultBodyPhrases = []string{
	"too many requests",
	"rate limit",
	"rate-limited",
	"slow down",
	"throttled",
	"request limit exceeded",
}

// DefaultVendorMarkers are CDN and bot-manager challenge page markers. They
// are only matched against non-2xx bodies; Cloudflare injects
// challenge-platform scripts into ordinary pages, so that marker is left to
// the 403 challenge check.
var DefaultVendorMarkers = []string{
	"cf-chl-",
	"attention required! | cloudflare",
	"incapsula incident id",
	"_incapsula_resource",
	"captcha-delivery.com",
	"px-captcha",
	"akamai bot manager",
}

// DetectorConfig configures signal detection.
type DetectorConfig struct {
	StatusCodes       []int
	DomainStatusCodes map[string][]int
	BodyPhrases       []string
	VendorMarkers     []string
	BodyPrefix        int
}

// Detector classifies a completed response as throttled or not. It holds
// only immutable configuration and is safe for concurrent use.
type Detector struct {
	Clock func() time.Time

	statusCodes map[int]struct{}
	domainCodes map[string]map[int]struct{}
	phrases     []string
	vendors     []string
	bodyPrefix  int
}

// NewDetector builds a detector, falling back to defaults for empty lists.
func NewDetector(cfg DetectorConfig) *Detector {
	codes := cfg.StatusCodes
	if len(codes) == 0 {
		codes = DefaultStatusCodes
	}
	phrases := cfg.BodyPhrases
	if phrases == nil {
		phrases = DefaultBodyPhrases
	}
	vendors := cfg.VendorMarkers
	if vendors == nil {
		vendors = DefaultVendorMarkers
	}
	prefix := cfg.BodyPrefix
	if prefix <= 0 {
		prefix = DefaultBodyPrefix
	}

	d := &Detector{
		statusCodes: codeSet(codes),
		domainCodes: make(map[string]map[int]struct{}, len(cfg.DomainStatusCodes)),
		phrases:     foldAll(phrases),
		vendors:     foldAll(vendors),
		bodyPrefix:  prefix,
	}
	for domain, list := range cfg.DomainStatusCodes {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" || len(list) == 0 {
			continue
		}
		d.domainCodes[domain] = codeSet(list)
	}
	return d
}

// Detect inspects resp for throttling. The first matching rule wins:
// throttling status codes and CDN-challenge 403s, then a Retry-After
// header, then vendor markers (non-2xx only) and generic body phrases. A
// parseable Retry-After hint is attached whichever rule matched.
func (d *Detector) Detect(domain string, resp core.Response) core.Detection {
	hint, hintOK := d.retryAfter(resp.Header)
	result := func(source core.DetectionSource, marker string) core.Detection {
		det := core.Detection{RateLimited: true, Source: source, Marker: marker}
		if hintOK {
			det.RetryAfter = &hint
		}
		return det
	}

	if d.throttleStatus(domain, resp.StatusCode) {
		return result(core.SourceStatusCode, strconv.Itoa(resp.StatusCode))
	}

	var body string
	bodyReady := false
	foldedBody := func() string {
		if !bodyReady {
			body = d.decodeBody(resp)
			bodyReady = true
		}
		return body
	}

	if resp.StatusCode == http.StatusForbidden {
		if vendor := cdnChallenge(resp.Header, foldedBody); vendor != "" {
			return result(core.SourceVendorPattern, vendor)
		}
	}

	if hintOK {
		return result(core.SourceHeader, "retry-after")
	}

	text := foldedBody()
	if text == "" {
		return core.Detection{}
	}
	if !success(resp.StatusCode) {
		for _, marker := range d.vendors {
			if strings.Contains(text, marker) {
				return result(core.SourceVendorPattern, marker)
			}
		}
	}
	for _, phrase := range d.phrases {
		if strings.Contains(text, phrase) {
			return result(core.SourceBodyPattern, phrase)
		}
	}
	return core.Detection{}
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func (d *Detector) throttleStatus(domain string, status int) bool {
	if _, ok := d.statusCodes[status]; ok {
		return true
	}
	if codes, ok := d.domainCodes[domain]; ok {
		_, ok = codes[status]
		return ok
	}
	return false
}

// retryAfter parses a Retry-After header as delta-seconds or an HTTP-date.
// Malformed values report ok=false; dates in the past yield a zero hint.
func (d *Detector) retryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > maxHintSeconds {
			seconds = maxHintSeconds
		}
		return time.Duration(seconds) * time.Second, true
	}
	if parsed, err := http.ParseTime(value); err == nil {
		wait := parsed.Sub(nowFrom(d.Clock))
		if wait < 0 {
			wait = 0
		}
		return wait.Round(time.Second), true
	}
	return 0, false
}

// decodeBody converts the bounded body prefix to case-folded UTF-8.
func (d *Detector) decodeBody(resp core.Response) string {
	if len(resp.Body) == 0 {
		return ""
	}
	raw := resp.Body
	if len(raw) > d.bodyPrefix {
		raw = raw[:d.bodyPrefix]
	}
	contentType := ""
	if resp.Header != nil {
		contentType = resp.Header.Get("Content-Type")
	}
	text := string(raw)
	if reader, err := charset.NewReader(bytes.NewReader(raw), contentType); err == nil {
		if decoded, err := io.ReadAll(reader); err == nil {
			text = string(decoded)
		}
	}
	return cases.Fold().String(text)
}

// cdnChallenge recognizes 403 responses that are bot-manager challenges
// rather than real authorization failures.
func cdnChallenge(header http.Header, body func() string) string {
	if header == nil {
		header = http.Header{}
	}
	server := strings.ToLower(header.Get("Server"))
	switch {
	case strings.EqualFold(header.Get("Cf-Mitigated"), "challenge"):
		return "cloudflare"
	case strings.Contains(server, "cloudflare") &&
		(strings.Contains(body(), "cf-chl-") || strings.Contains(body(), "challenge-platform")):
		return "cloudflare"
	case header.Get("X-Amzn-Waf-Action") != "":
		return "aws-waf"
	case header.Get("X-Datadome") != "" || header.Get("X-Dd-B") != "":
		return "datadome"
	case header.Get("X-Iinfo") != "" || strings.Contains(strings.ToLower(header.Get("X-Cdn")), "imperva"):
		return "imperva"
	case strings.Contains(server, "akamaighost") && strings.Contains(body(), "reference #"):
		return "akamai"
	}
	return ""
}

func codeSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

func foldAll(values []string) []string {
	caser := cases.Fold()
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, caser.String(value))
	}
	return out
}
