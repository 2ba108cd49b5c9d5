// Package api exposes the dispatch HTTP surface: job pull and status
// report for external senders, the cron batch trigger, campaign lifecycle
// and health probes.
package api

import (
	"context"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

// JobDispatcher is the subset of *dispatch.Service the handlers use.
type JobDispatcher interface {
	MaterializeJobs(ctx context.Context, workspaceID, platformUserID string, now time.Time, maxJobs int) (*dispatch.PullResult, error)
	ReportStatus(ctx context.Context, workspaceID, jobID string, status domain.Outcome, errMsg string, now time.Time) (*dispatch.ReportResult, error)
	ProcessAllRunningCampaigns(ctx context.Context, now time.Time) (*dispatch.BatchResult, error)
}

// CampaignManager is the subset of *campaign.Service the handlers use.
type CampaignManager interface {
	Create(ctx context.Context, workspaceID string, in campaign.CreateInput) (*campaign.Detail, error)
	Get(ctx context.Context, workspaceID, id string) (*campaign.Detail, error)
	List(ctx context.Context, workspaceID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Start(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)
	Pause(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)
	Resume(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)
}

// RunLister reads archived batch results.
type RunLister interface {
	ListRuns(ctx context.Context, day time.Time) ([]dispatch.BatchResult, error)
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	dispatch   JobDispatcher
	campaigns  CampaignManager
	runs       RunLister
	cronSecret string
	now        func() time.Time
}

// NewHandlers creates the handler set. runs may be nil.
func NewHandlers(d JobDispatcher, c CampaignManager, runs RunLister, cronSecret string) *Handlers {
	return &Handlers{
		dispatch:   d,
		campaigns:  c,
		runs:       runs,
		cronSecret: cronSecret,
		now:        time.Now,
	}
}
