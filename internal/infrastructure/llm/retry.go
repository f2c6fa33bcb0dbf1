package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryTransport re-sends requests that failed at the network level or came
// back with 429 or 5xx. The final response is returned as is.
type RetryTransport struct {
	base     http.RoundTripper
	maxTries uint
	initial  time.Duration
}

// NewRetryTransport wraps base. retries is the number of extra attempts.
func NewRetryTransport(base http.RoundTripper, retries int, initial time.Duration) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if retries < 0 {
		retries = 0
	}
	return &RetryTransport{base: base, maxTries: uint(retries) + 1, initial: initial}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initial
	bo.MaxInterval = 2 * time.Second

	var tries uint
	op := func() (*http.Response, error) {
		attempt := req
		if tries > 0 && req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, backoff.Permanent(errors.New("request body cannot be replayed"))
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("rewind body: %w", err))
			}
			attempt = req.Clone(req.Context())
			attempt.Body = body
		}
		tries++

		resp, err := t.base.RoundTrip(attempt)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if retryableStatus(resp.StatusCode) && tries < t.maxTries {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("retryable status %s", resp.Status)
		}
		return resp, nil
	}

	return backoff.Retry(req.Context(), op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(t.maxTries),
	)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
