package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

type jobsResponse struct {
	Success      bool           `json:"success"`
	Jobs         []domain.Job   `json:"jobs"`
	Limit        dispatch.Limit `json:"limit"`
	AccountReady *bool          `json:"accountReady,omitempty"`
}

// PullJobs returns the jobs an external sender should perform now.
//
//	GET /api/jobs/{platformUserId}?limit=N
func (h *Handlers) PullJobs(w http.ResponseWriter, r *http.Request) {
	platformUserID := chi.URLParam(r, "platformUserId")
	if platformUserID == "" {
		httputil.BadRequest(w, "platformUserId is required")
		return
	}
	maxJobs, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	res, err := h.dispatch.MaterializeJobs(r.Context(), WorkspaceFromContext(r.Context()), platformUserID, h.now(), maxJobs)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := jobsResponse{Success: true, Jobs: res.Jobs, Limit: res.Limit}
	if !res.AccountReady {
		ready := false
		resp.AccountReady = &ready
	}
	httputil.OK(w, resp)
}

type jobStatusRequest struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReportJobStatus records the outcome of a job.
//
//	POST /api/jobs/status
func (h *Handlers) ReportJobStatus(w http.ResponseWriter, r *http.Request) {
	var req jobStatusRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.JobID == "" {
		httputil.BadRequest(w, "jobId is required")
		return
	}

	status := domain.Outcome(strings.ToUpper(strings.TrimSpace(req.Status)))
	res, err := h.dispatch.ReportStatus(r.Context(), WorkspaceFromContext(r.Context()), req.JobID, status, req.Error, h.now())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logger.Debug("job status recorded", "job_id", res.JobID, "status", string(status))
	httputil.Message(w, fmt.Sprintf("job %s marked %s", res.JobID, status))
}
