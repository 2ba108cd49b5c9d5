package dispatch

import (
	"context"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/ratelimit"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

// Store is the read access dispatch needs beyond the progression engine.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	// ListRunningCampaigns returns RUNNING campaigns, oldest first.
	ListRunningCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// AccountRegistry resolves sending accounts. Returns ErrAccountNotFound
// when the account is unknown to the workspace.
type AccountRegistry interface {
	GetAccountByPlatformUserID(ctx context.Context, workspaceID, platformUserID string) (*domain.Account, error)
}

// Progression is the subset of *progression.Engine used here.
type Progression interface {
	SelectDueForAccount(ctx context.Context, accountID string, now time.Time, limit int, excludeCampaigns ...string) ([]progression.Due, error)
	ReportOutcome(ctx context.Context, recipientID string, expectedStep int, outcome domain.Outcome, errMsg string, now time.Time) (*progression.TransitionResult, error)
	Activate(ctx context.Context, c *domain.Campaign, now time.Time) (int, error)
	CompleteIfDrained(ctx context.Context, campaignID string, now time.Time) (bool, error)
}

// Limiter is the subset of *ratelimit.Limiter used here.
type Limiter interface {
	Budget(ctx context.Context, accountID string, dailyLimit int, today time.Time) (ratelimit.Budget, error)
	RecordSend(ctx context.Context, accountID string, today time.Time) error
	CampaignBudget(ctx context.Context, campaignID string, perDay int, today time.Time) (ratelimit.Budget, error)
	RecordCampaignSend(ctx context.Context, campaignID string, today time.Time) error
}

// Publisher emits lifecycle events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// RunArchive stores batch results.
type RunArchive interface {
	SaveRun(ctx context.Context, result *BatchResult) error
}

// Locker creates the lock that de-duplicates concurrent batch runs.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Event routing keys.
const (
	EventRecipientOutcome  = "recipient.outcome"
	EventCampaignCompleted = "campaign.completed"
)
