package progression

import (
	"context"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
)

// Repository defines the data access contract for recipient progression.
// Implementations must be safe for concurrent use and must apply each
// Transition atomically.
type Repository interface {
	// GetCampaign returns ErrCampaignNotFound if it doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// GetRecipient returns ErrRecipientNotFound if it doesn't exist.
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)

	// ListSteps returns a campaign's steps ordered by Order.
	ListSteps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)

	// ListDueRecipients returns active recipients of the campaign whose
	// NextActionAt is nil or <= now, ordered by CreatedAt then ID.
	ListDueRecipients(ctx context.Context, campaignID string, now time.Time) ([]domain.Recipient, error)

	// ListDueRecipientsForAccount is ListDueRecipients across every RUNNING
	// campaign not in excludeCampaigns, restricted to one sending account
	// and at most limit rows.
	ListDueRecipientsForAccount(ctx context.Context, accountID string, now time.Time, limit int, excludeCampaigns []string) ([]domain.Recipient, error)

	// ApplyTransition writes the recipient change, bumps the campaign's
	// sent/failed counter and, for terminal transitions, completes the
	// campaign when no active recipients remain. All in one transaction.
	// Returns ErrStaleTransition when the guard does not match.
	ApplyTransition(ctx context.Context, t Transition) (campaignCompleted bool, err error)

	// ActivateDue moves due PENDING recipients to IN_PROGRESS.
	ActivateDue(ctx context.Context, campaignID string, now time.Time) (int, error)

	// CompleteIfDrained marks a RUNNING campaign COMPLETED if it has no
	// active recipients. Returns whether it did.
	CompleteIfDrained(ctx context.Context, campaignID string, now time.Time) (bool, error)
}

// Transition is one guarded recipient state change.
type Transition struct {
	RecipientID string
	CampaignID  string

	// Guard: the recipient must be active and on FromStep.
	FromStep int

	Outcome      domain.Outcome
	ToStep       int
	Status       domain.RecipientStatus
	NextActionAt *time.Time
	ErrorMessage string
	Now          time.Time
}

// Terminal reports whether the transition ends the recipient's sequence.
func (t Transition) Terminal() bool {
	return t.Status == domain.RecipientCompleted || t.Status == domain.RecipientFailed
}
