package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Conflict(rec, "job is stale")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "job is stale", body["error"])
}

func TestInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Message(rec, "ok")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"ok"}`, rec.Body.String())
}

func TestDecode(t *testing.T) {
	var dst struct {
		JobID string `json:"jobId"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jobId":"r1:1"}`))
	assert.True(t, Decode(rec, req, &dst))
	assert.Equal(t, "r1:1", dst.JobID)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
