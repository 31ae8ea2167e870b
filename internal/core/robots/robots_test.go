package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestManagerLongestMatch(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /admin\nAllow: /admin/public\n")
	m := NewManager("crawlpace")
	ctx := context.Background()

	require.True(t, m.IsAllowed(ctx, server.URL+"/admin/public/page"))
	require.False(t, m.IsAllowed(ctx, server.URL+"/admin/private"))
	require.True(t, m.IsAllowed(ctx, server.URL+"/"))
}

func TestManagerIgnoresQueryAndFragment(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n")
	m := NewManager("crawlpace")
	ctx := context.Background()

	require.True(t, m.IsAllowed(ctx, server.URL+"/page?next=/private#/private"))
	require.False(t, m.IsAllowed(ctx, server.URL+"/private?x=1"))
}

func TestManagerCrawlDelay(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 2\nDisallow: /tmp\n")
	m := NewManager("crawlpace")

	delay, ok := m.CrawlDelay(context.Background(), server.URL+"/page")
	require.True(t, ok)
	require.Equal(t, 2*time.Second, delay)

	allowed, delay, err := m.Check(context.Background(), server.URL+"/tmp/x")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 2*time.Second, delay)
}

func TestManagerAgentGroup(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: crawlpace\nDisallow: /\n\nUser-agent: *\nAllow: /\n")

	require.False(t, NewManager("crawlpace").IsAllowed(context.Background(), server.URL+"/a"))
	require.True(t, NewManager("otherbot").IsAllowed(context.Background(), server.URL+"/a"))
}

func TestManagerFailOpenOnTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	m := NewManager("crawlpace")
	m.FetchTimeout = 50 * time.Millisecond

	decision, err := m.Evaluate(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, decision.FailOpen)
	require.Zero(t, decision.CrawlDelay)

	_, ok := m.CrawlDelay(context.Background(), server.URL+"/anything")
	require.False(t, ok)

	stats := m.Stats()
	require.EqualValues(t, 1, stats.FetchFailures)
	require.EqualValues(t, 1, stats.Misses)
	require.EqualValues(t, 1, stats.Hits)
}

func TestManagerFailOpenOnStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		server, calls := robotsServer(t, status, "User-agent: *\nDisallow: /\n")
		m := NewManager("crawlpace")

		require.True(t, m.IsAllowed(context.Background(), server.URL+"/x"))
		require.True(t, m.IsAllowed(context.Background(), server.URL+"/y"))
		require.EqualValues(t, 1, calls.Load(), "failed fetch is cached for status %d", status)
	}
}

func TestManagerFailOpenOnUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	m := NewManager("crawlpace")
	require.True(t, m.IsAllowed(context.Background(), addr+"/x"))
	require.EqualValues(t, 1, m.Stats().FetchFailures)
}

func TestManagerTTL(t *testing.T) {
	server, calls := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /x\n")
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager("crawlpace")
	m.Clock = func() time.Time { return now }
	ctx := context.Background()

	require.False(t, m.IsAllowed(ctx, server.URL+"/x"))
	now = now.Add(23 * time.Hour)
	require.False(t, m.IsAllowed(ctx, server.URL+"/x"))
	require.EqualValues(t, 1, calls.Load())

	now = now.Add(2 * time.Hour)
	require.False(t, m.IsAllowed(ctx, server.URL+"/x"))
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 1, m.Stats().Entries)
}

func TestManagerInvalidate(t *testing.T) {
	server, calls := robotsServer(t, http.StatusOK, "")
	m := NewManager("crawlpace")
	ctx := context.Background()

	require.True(t, m.IsAllowed(ctx, server.URL+"/"))
	m.Invalidate(server.URL)
	require.True(t, m.IsAllowed(ctx, server.URL+"/"))
	require.EqualValues(t, 2, calls.Load())
}

func TestManagerSingleFlight(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	t.Cleanup(server.Close)

	m := NewManager("crawlpace")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IsAllowed(context.Background(), server.URL+"/private/page")
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, 1, m.Stats().Entries)
}

func TestManagerCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	t.Cleanup(server.Close)

	m := NewManager("crawlpace")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Evaluate(ctx, server.URL+"/private")
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return m.Stats().Entries == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, m.IsAllowed(context.Background(), server.URL+"/private"))
}

func TestManagerRejectsInvalidURLs(t *testing.T) {
	m := NewManager("crawlpace")
	for _, raw := range []string{"ftp://example.com/x", "/relative", "http://"} {
		_, err := m.Evaluate(context.Background(), raw)
		require.ErrorIs(t, err, ErrInvalidURL, raw)
		require.False(t, m.IsAllowed(context.Background(), raw))
	}
}

func TestManagerBodyLimit(t *testing.T) {
	body := "User-agent: *\nAllow: /\n# " + strings.Repeat("x", 64) + "\nDisallow: /late\n"
	server, _ := robotsServer(t, http.StatusOK, body)
	m := NewManager("crawlpace")
	m.MaxBodyBytes = 24

	require.True(t, m.IsAllowed(context.Background(), server.URL+"/late"))
}
