package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/crawlpace/crawlpace/internal/core"
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultFetchTimeout = 5 * time.Second
	DefaultMaxBodyBytes = 512 * 1024
	DefaultUserAgent    = "crawlpace"
)

// ErrInvalidURL is returned for URLs that cannot carry a robots policy.
var ErrInvalidURL = errors.New("invalid url")

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Decision is the evaluated robots policy for one URL.
type Decision struct {
	URL        string        `json:"url"`
	Origin     string        `json:"origin"`
	Allowed    bool          `json:"allowed"`
	CrawlDelay time.Duration `json:"crawl_delay"`
	FailOpen   bool          `json:"fail_open"`
	Status     int           `json:"status,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// Manager fetches, caches and evaluates robots.txt per origin. Entries live
// for TTL and are replaced whole on refetch. Any fetch or parse failure
// caches an allow-all entry.
type Manager struct {
	UserAgent    string
	TTL          time.Duration
	FetchTimeout time.Duration
	MaxBodyBytes int64
	Client       *http.Client
	Clock        func() time.Time
	Logger       Logger

	mu      sync.RWMutex
	entries map[string]*entry
	flight  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

type entry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
	status    int
	failOpen  bool
	reason    string
}

// NewManager returns a manager with default TTL, timeout and body limit.
func NewManager(userAgent string) *Manager {
	return &Manager{
		UserAgent:    userAgent,
		TTL:          DefaultTTL,
		FetchTimeout: DefaultFetchTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// IsAllowed reports whether rawURL may be fetched. Invalid URLs are not.
func (m *Manager) IsAllowed(ctx context.Context, rawURL string) bool {
	decision, err := m.Evaluate(ctx, rawURL)
	if err != nil {
		return false
	}
	return decision.Allowed
}

// CrawlDelay returns the crawl-delay for rawURL's origin, if one is set.
func (m *Manager) CrawlDelay(ctx context.Context, rawURL string) (time.Duration, bool) {
	decision, err := m.Evaluate(ctx, rawURL)
	if err != nil || decision.CrawlDelay <= 0 {
		return 0, false
	}
	return decision.CrawlDelay, true
}

// Check combines IsAllowed and CrawlDelay in one lookup.
func (m *Manager) Check(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	decision, err := m.Evaluate(ctx, rawURL)
	if err != nil {
		return false, 0, err
	}
	return decision.Allowed, decision.CrawlDelay, nil
}

// Evaluate resolves the policy for rawURL, fetching robots.txt on a miss.
// Only the path is matched; query and fragment are ignored.
func (m *Manager) Evaluate(ctx context.Context, rawURL string) (*Decision, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, target.Scheme)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("%w: no host in %q", ErrInvalidURL, rawURL)
	}

	origin := core.Origin(target)
	e, err := m.entry(ctx, origin)
	if err != nil {
		return nil, err
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	decision := &Decision{
		URL:       rawURL,
		Origin:    origin,
		Allowed:   true,
		FailOpen:  e.failOpen,
		Status:    e.status,
		Reason:    e.reason,
		FetchedAt: e.fetchedAt,
	}
	if e.group != nil {
		decision.Allowed = e.group.Test(path)
		decision.CrawlDelay = e.group.CrawlDelay
	}
	return decision, nil
}

// Stats reports cache size and effectiveness.
func (m *Manager) Stats() core.RobotsStats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	return core.RobotsStats{
		Entries:       size,
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		FetchFailures: m.failures.Load(),
	}
}

// Invalidate drops the cached entry for an origin (scheme://host[:port]).
func (m *Manager) Invalidate(origin string) {
	m.mu.Lock()
	delete(m.entries, strings.ToLower(strings.TrimSpace(origin)))
	m.mu.Unlock()
}

func (m *Manager) entry(ctx context.Context, origin string) (*entry, error) {
	now := m.now()
	m.mu.RLock()
	cached, ok := m.entries[origin]
	m.mu.RUnlock()
	if ok && now.Sub(cached.fetchedAt) < m.ttl() {
		m.hits.Add(1)
		return cached, nil
	}
	m.misses.Add(1)

	// The fetch is detached from the first caller so that its cancellation
	// does not poison the shared result for other waiters.
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(origin, func() (any, error) {
		fresh := m.fetch(fetchCtx, origin)
		m.mu.Lock()
		if m.entries == nil {
			m.entries = make(map[string]*entry)
		}
		m.entries[origin] = fresh
		m.mu.Unlock()
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val.(*entry), nil
	}
}

func (m *Manager) fetch(ctx context.Context, origin string) *entry {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout())
	defer cancel()

	robotsURL := origin + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return m.failOpen(origin, 0, fmt.Errorf("build robots request: %w", err))
	}
	if agent := m.userAgent(); agent != "" {
		req.Header.Set("User-Agent", agent)
	}

	resp, err := m.client().Do(req)
	if err != nil {
		return m.failOpen(origin, 0, fmt.Errorf("fetch robots.txt: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return m.failOpen(origin, resp.StatusCode, fmt.Errorf("robots.txt returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBodyBytes()))
	if err != nil {
		return m.failOpen(origin, resp.StatusCode, fmt.Errorf("read robots.txt: %w", err))
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return m.failOpen(origin, resp.StatusCode, fmt.Errorf("parse robots.txt: %w", err))
	}

	m.logger().Debug("Fetched robots.txt",
		zap.String("origin", origin),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return &entry{
		group:     data.FindGroup(m.userAgent()),
		fetchedAt: m.now(),
		status:    resp.StatusCode,
	}
}

func (m *Manager) failOpen(origin string, status int, err error) *entry {
	m.failures.Add(1)
	m.logger().Warn("robots.txt unavailable, allowing all",
		zap.String("origin", origin),
		zap.Int("status", status),
		zap.Error(err),
	)
	return &entry{
		fetchedAt: m.now(),
		status:    status,
		failOpen:  true,
		reason:    err.Error(),
	}
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

func (m *Manager) fetchTimeout() time.Duration {
	if m.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return m.FetchTimeout
}

func (m *Manager) maxBodyBytes() int64 {
	if m.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return m.MaxBodyBytes
}

func (m *Manager) userAgent() string {
	if strings.TrimSpace(m.UserAgent) == "" {
		return DefaultUserAgent
	}
	return m.UserAgent
}

func (m *Manager) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

var nopLogger Logger = zap.NewNop()

func (m *Manager) logger() Logger {
	if m.Logger == nil {
		return nopLogger
	}
	return m.Logger
}
