package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

// maxPayloadBytes caps how much of the feed response is read.
const maxPayloadBytes = 16 << 20

// HTTPFetcher downloads the trends feed without caching.
type HTTPFetcher struct {
	url       string
	userAgent string
	client    *http.Client
	now       func() time.Time
}

var _ ports.FeedSource = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; timeout defaults to 30s when client is nil.
func NewHTTPFetcher(url, userAgent string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = "TrendsScanner/1.0"
	}
	return &HTTPFetcher{url: url, userAgent: userAgent, client: client, now: time.Now}
}

// Fetch performs one GET and returns the body with its capture time.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: build request: %v", domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: request feed: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, time.Time{}, fmt.Errorf("%w: feed returned %s", domain.ErrFetch, resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: read feed: %v", domain.ErrFetch, err)
	}

	return payload, f.now(), nil
}
