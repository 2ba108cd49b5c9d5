package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
)

// CreateCampaign creates a DRAFT campaign with its steps and recipients.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	d, err := h.campaigns.Create(r.Context(), WorkspaceFromContext(r.Context()), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"success": true, "campaign": d})
}

// ListCampaigns lists the workspace's campaigns, newest first.
//
//	GET /api/campaigns?status=RUNNING&page=1&limit=50
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 200)
	f := campaign.ListFilter{
		Status: strings.ToUpper(r.URL.Query().Get("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	items, total, err := h.campaigns.List(r.Context(), WorkspaceFromContext(r.Context()), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, map[string]any{
		"success":    true,
		"campaigns":  items,
		"pagination": p.Meta(total),
	})
}

// GetCampaign returns a campaign with steps and recipient stats.
//
//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	d, err := h.campaigns.Get(r.Context(), WorkspaceFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"success": true, "campaign": d})
}

// StartCampaign, PauseCampaign and ResumeCampaign drive the lifecycle.
//
//	POST /api/campaigns/{id}/start
//	POST /api/campaigns/{id}/pause
//	POST /api/campaigns/{id}/resume
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Start)
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Pause)
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Resume)
}

type lifecycleFunc func(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, fn lifecycleFunc) {
	c, err := fn(r.Context(), WorkspaceFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"success": true, "campaign": c})
}
