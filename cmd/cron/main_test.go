package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dm-dispatch/internal/pkg/httpretry"
)

func TestTrigger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"processed":2,"failed":1,"total":3,"campaigns":[{"campaignId":"c1","success":false,"error":"timeout"}],"timestamp":"2026-03-10T12:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := trigger(context.Background(), srv.Client(), srv.URL, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Campaigns, 1)
	assert.Equal(t, "timeout", res.Campaigns[0].Error)
}

func TestTrigger_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
	}))
	defer srv.Close()

	_, err := trigger(context.Background(), srv.Client(), srv.URL, "wrong")
	assert.ErrorContains(t, err, "status 401: unauthorized")
}

func TestTrigger_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"processed":0,"failed":0,"total":0,"campaigns":[]}`))
	}))
	defer srv.Close()

	client := httpretry.NewRetryClient(srv.Client(), 2, httpretry.WithBackoff(time.Millisecond, 5*time.Millisecond))
	res, err := trigger(context.Background(), client, srv.URL, "s3cret")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 2, calls.Load())
}
