package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// Fetcher performs generic GET requests against external JSON endpoints
// (market prices, per-account reward data). Every request carries a
// monotonically increasing cache-busting parameter so repeated identical
// requests are never served from an intermediate cache.
type Fetcher struct {
	client *http.Client
	buster atomic.Int64
}

// FetcherOption configures Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchClient sets a custom http.Client.
func WithFetchClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher creates a Fetcher. The cache buster is seeded from the wall
// clock so values keep increasing across process restarts.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: DefaultTimeout},
	}
	f.buster.Store(time.Now().UnixMilli())
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs rawURL with the given query parameters plus the cache buster
// and decodes the JSON response into out. Failures surface as *RemoteError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params map[string]string, out any) error {
	remoteErr := func(err error) error {
		return &RemoteError{Op: "fetch", URL: rawURL, Err: err}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return remoteErr(fmt.Errorf("parse url: %w", err))
	}

	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("v", fmt.Sprintf("%d", f.buster.Add(1)))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return remoteErr(fmt.Errorf("create request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return remoteErr(fmt.Errorf("http request: %w", err))
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return remoteErr(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return remoteErr(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return remoteErr(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}
