// Package worker calls a remote enrichment worker over HTTP.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

// EnrichRequest is the batch payload accepted by POST /v1/enrich.
type EnrichRequest struct {
	TrendID  int64   `json:"trend_id,omitempty"`
	TrendIDs []int64 `json:"trend_ids,omitempty"`
}

// EnrichResponse is the body returned by POST /v1/enrich.
type EnrichResponse struct {
	Success bool                      `json:"success"`
	Results []domain.EnrichmentResult `json:"results"`
	Error   string                    `json:"error,omitempty"`
}

const maxResponseBytes = 8 << 20

// Client implements ports.Enricher against a remote worker.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Enricher = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx reply from the worker. Message carries the
// worker's own error field when the body had one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker replied %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("worker replied %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// EnrichBatch dispatches the ids in a single request. Transport failures and
// non-2xx replies are batch-level errors. Results for ids that were not
// requested are dropped, so callers only see outcomes they can settle.
func (c *Client) EnrichBatch(ctx context.Context, trendIDs []int64) ([]domain.EnrichmentResult, error) {
	if len(trendIDs) == 0 {
		return nil, nil
	}

	resp, err := c.dispatch(ctx, EnrichRequest{TrendIDs: trendIDs})
	if err != nil {
		return nil, err
	}

	requested := make(map[int64]struct{}, len(trendIDs))
	for _, id := range trendIDs {
		requested[id] = struct{}{}
	}
	results := make([]domain.EnrichmentResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if _, ok := requested[r.TrendID]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (c *Client) dispatch(ctx context.Context, payload EnrichRequest) (*EnrichResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode enrich request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build enrich request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call worker: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read worker reply: %w", err)
	}

	var out EnrichResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = snippet(raw)
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode worker reply: %w", decodeErr)
	}
	return &out, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
