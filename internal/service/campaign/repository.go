package campaign

import (
	"context"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign in the workspace. Returns ErrNotFound if
	// it doesn't exist.
	Get(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, newest first.
	List(ctx context.Context, workspaceID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts the campaign, its steps and its recipients atomically.
	Create(ctx context.Context, c *domain.Campaign, steps []domain.CampaignStep, recipients []domain.Recipient) error

	// ListSteps returns the campaign's steps ordered by Order.
	ListSteps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)

	// Stats counts the campaign's recipients by status.
	Stats(ctx context.Context, campaignID string) (domain.CampaignStats, error)

	// Start moves a DRAFT campaign to RUNNING, stamps StartedAt and
	// schedules every unscheduled PENDING recipient at now+firstDelay.
	// Returns ErrInvalidTransition if the campaign is not DRAFT.
	Start(ctx context.Context, workspaceID, id string, now time.Time, firstDelay time.Duration) error

	// SetStatus moves the campaign from one of the allowed statuses to to.
	// Returns ErrInvalidTransition if the current status is not in from.
	SetStatus(ctx context.Context, workspaceID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) error
}

// AccountDirectory resolves the sending accounts a workspace owns.
type AccountDirectory interface {
	// OwnedAccountIDs returns the subset of ids that belong to workspaceID.
	OwnedAccountIDs(ctx context.Context, workspaceID string, ids []string) (map[string]bool, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
