package api

import (
	"net/http"
	"time"

	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

type batchResponse struct {
	Success bool `json:"success"`
	*dispatch.BatchResult
}

// ProcessCampaigns runs one batch over every RUNNING campaign.
//
//	POST /api/cron/process-campaigns
func (h *Handlers) ProcessCampaigns(w http.ResponseWriter, r *http.Request) {
	if !cronAuthorized(r, h.cronSecret) {
		httputil.Unauthorized(w, "unauthorized")
		return
	}

	res, err := h.dispatch.ProcessAllRunningCampaigns(r.Context(), h.now())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logger.Info("cron batch finished", "processed", res.Processed, "failed", res.Failed,
		"total", res.Total, "skipped", res.Skipped)
	httputil.OK(w, batchResponse{Success: true, BatchResult: res})
}

// ListRuns returns the archived batch results of one UTC day.
//
//	GET /api/cron/runs?date=YYYY-MM-DD
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !cronAuthorized(r, h.cronSecret) {
		httputil.Unauthorized(w, "unauthorized")
		return
	}
	if h.runs == nil {
		httputil.NotFound(w, "run archive not configured")
		return
	}

	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httputil.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	runs, err := h.runs.ListRuns(r.Context(), day)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"success": true,
		"date":    day.Format(time.DateOnly),
		"runs":    runs,
	})
}
