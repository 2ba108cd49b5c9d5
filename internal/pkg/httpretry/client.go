// Package httpretry provides an HTTP client that retries transient failures
// with exponential backoff and full jitter.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithBackoff overrides the base and maximum retry delay.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// RetryClient wraps an HTTPDoer with retry logic.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient wraps client, or an http.Client with a 30s timeout when nil.
// maxRetries counts attempts after the first; values <= 0 mean 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do retries on 429/500/502/503/504 and network errors. Client errors and
// context cancellation return immediately. The last retryable response is
// returned as-is so the caller can read its body.
//
// Requests with a body are only retried when req.GetBody is set.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var (
		lastErr   error
		waitAfter time.Duration
	)

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.Body != nil && req.GetBody == nil {
				return nil, fmt.Errorf("httpretry: cannot replay request body: %w", lastErr)
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			if waitAfter > delay {
				delay = waitAfter
			}
			logger.Warn("retrying request",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"wait", delay.String(), "error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				return nil, lastErr
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			waitAfter = 0
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		waitAfter = retryAfter(resp.Header.Get("Retry-After"), rc.maxDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay is random(0, min(maxDelay, baseDelay*2^(attempt-1))) with a
// floor of 10ms.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 10*time.Millisecond {
		jittered = 10 * time.Millisecond
	}
	return jittered
}

// retryAfter parses a delay-seconds Retry-After header, capped at max.
// HTTP-date values are ignored.
func retryAfter(header string, max time.Duration) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
