package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(maxRetries int) *RetryClient {
	return NewRetryClient(nil, maxRetries, WithBackoff(time.Millisecond, 5*time.Millisecond))
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"x":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"x":1}`))
	require.NoError(t, err)

	resp, err := fastClient(3).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
	resp, err := fastClient(3).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDo_ReturnsLastRetryableResponse(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastClient(2).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

type failingDoer struct{ calls int }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestDo_NetworkErrorsExhaustRetries(t *testing.T) {
	doer := &failingDoer{}
	rc := NewRetryClient(doer, 2, WithBackoff(time.Millisecond, time.Millisecond))

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := rc.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, doer.calls)
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doer := &failingDoer{}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	_, err := NewRetryClient(doer, 3).Do(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, doer.calls)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryAfter("2", time.Minute))
	assert.Equal(t, time.Second, retryAfter("120", time.Second))
	assert.Zero(t, retryAfter("", time.Minute))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT", time.Minute))
}

func TestCalculateDelayBounds(t *testing.T) {
	rc := NewRetryClient(nil, 3, WithBackoff(100*time.Millisecond, 300*time.Millisecond))
	for attempt := 1; attempt <= 5; attempt++ {
		d := rc.calculateDelay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
