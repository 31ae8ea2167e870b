package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 64 * 1024
)

// Fetcher is a plain HTTP GET client that keeps a bounded body prefix,
// enough for throttle detection.
type Fetcher struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
}

// New returns a fetcher with its own client and timeout.
func New(timeout time.Duration, userAgent string, maxBodyBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Client:       &http.Client{Timeout: timeout},
		UserAgent:    userAgent,
		MaxBodyBytes: maxBodyBytes,
	}
}

// Fetch issues a GET for rawURL. Non-2xx statuses are returned as
// responses, not errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*core.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &core.Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}
