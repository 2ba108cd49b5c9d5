package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// Due pairs a recipient with the step it should receive next.
type Due struct {
	Recipient domain.Recipient
	Step      domain.CampaignStep
}

// TransitionResult describes the state written by ReportOutcome.
type TransitionResult struct {
	RecipientID       string                 `json:"recipientId"`
	CampaignID        string                 `json:"campaignId"`
	Status            domain.RecipientStatus `json:"status"`
	CurrentStepOrder  int                    `json:"currentStepOrder"`
	NextActionAt      *time.Time             `json:"nextActionAt,omitempty"`
	CampaignCompleted bool                   `json:"campaignCompleted"`
}

// Engine implements recipient progression. It holds no mutable state.
type Engine struct {
	repo Repository
}

// NewEngine creates an engine backed by the given repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// SelectDue returns the campaign's recipients that are due at now, paired
// with their next step, oldest first. It writes nothing.
func (e *Engine) SelectDue(ctx context.Context, campaignID string, now time.Time) ([]Due, error) {
	recipients, err := e.repo.ListDueRecipients(ctx, campaignID, now)
	if err != nil {
		return nil, fmt.Errorf("list due recipients: %w", err)
	}
	steps := newStepCache(e.repo)
	return steps.pair(ctx, recipients)
}

// SelectDueForAccount returns up to limit due recipients assigned to the
// account across all running campaigns.
func (e *Engine) SelectDueForAccount(ctx context.Context, accountID string, now time.Time, limit int, excludeCampaigns ...string) ([]Due, error) {
	if limit <= 0 {
		return nil, nil
	}
	recipients, err := e.repo.ListDueRecipientsForAccount(ctx, accountID, now, limit, excludeCampaigns)
	if err != nil {
		return nil, fmt.Errorf("list due recipients for account: %w", err)
	}
	steps := newStepCache(e.repo)
	return steps.pair(ctx, recipients)
}

// ReportOutcome applies a SENT or FAILED outcome for the recipient's
// expectedStep. A report for any other step returns ErrStaleTransition.
func (e *Engine) ReportOutcome(ctx context.Context, recipientID string, expectedStep int, outcome domain.Outcome, errMsg string, now time.Time) (*TransitionResult, error) {
	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}

	r, err := e.repo.GetRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsActive() || r.CurrentStepOrder+1 != expectedStep {
		return nil, ErrStaleTransition
	}

	t := Transition{
		RecipientID: r.ID,
		CampaignID:  r.CampaignID,
		FromStep:    r.CurrentStepOrder,
		Outcome:     outcome,
		Now:         now,
	}

	switch outcome {
	case domain.OutcomeSent:
		steps, err := e.repo.ListSteps(ctx, r.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		t.ToStep = r.CurrentStepOrder + 1
		if next, ok := stepByOrder(steps, t.ToStep+1); ok {
			at := now.Add(next.Delay())
			t.Status = domain.RecipientInProgress
			t.NextActionAt = &at
		} else {
			t.Status = domain.RecipientCompleted
		}
	case domain.OutcomeFailed:
		t.ToStep = r.CurrentStepOrder
		t.Status = domain.RecipientFailed
		t.ErrorMessage = errMsg
		if t.ErrorMessage == "" {
			t.ErrorMessage = "send failed"
		}
	}

	completed, err := e.repo.ApplyTransition(ctx, t)
	if err != nil {
		return nil, err
	}

	logger.Info("recipient transition applied",
		"recipient_id", r.ID, "campaign_id", r.CampaignID,
		"outcome", string(outcome), "status", string(t.Status), "step", t.ToStep)
	if completed {
		logger.Info("campaign completed", "campaign_id", r.CampaignID)
	}

	return &TransitionResult{
		RecipientID:       r.ID,
		CampaignID:        r.CampaignID,
		Status:            t.Status,
		CurrentStepOrder:  t.ToStep,
		NextActionAt:      t.NextActionAt,
		CampaignCompleted: completed,
	}, nil
}

// Activate marks the campaign's due PENDING recipients IN_PROGRESS. It is
// idempotent and a no-op for campaigns that are not RUNNING.
func (e *Engine) Activate(ctx context.Context, c *domain.Campaign, now time.Time) (int, error) {
	if c.Status != domain.CampaignRunning {
		return 0, nil
	}
	n, err := e.repo.ActivateDue(ctx, c.ID, now)
	if err != nil {
		return 0, fmt.Errorf("activate recipients: %w", err)
	}
	return n, nil
}

// CompleteIfDrained completes a RUNNING campaign with no active recipients.
func (e *Engine) CompleteIfDrained(ctx context.Context, campaignID string, now time.Time) (bool, error) {
	done, err := e.repo.CompleteIfDrained(ctx, campaignID, now)
	if err != nil {
		return false, fmt.Errorf("complete campaign: %w", err)
	}
	return done, nil
}

func stepByOrder(steps []domain.CampaignStep, order int) (domain.CampaignStep, bool) {
	for _, s := range steps {
		if s.Order == order {
			return s, true
		}
	}
	return domain.CampaignStep{}, false
}

// stepCache loads each campaign's steps once per selection.
type stepCache struct {
	repo  Repository
	steps map[string][]domain.CampaignStep
}

func newStepCache(repo Repository) *stepCache {
	return &stepCache{repo: repo, steps: make(map[string][]domain.CampaignStep)}
}

func (c *stepCache) pair(ctx context.Context, recipients []domain.Recipient) ([]Due, error) {
	out := make([]Due, 0, len(recipients))
	for _, r := range recipients {
		steps, ok := c.steps[r.CampaignID]
		if !ok {
			var err error
			steps, err = c.repo.ListSteps(ctx, r.CampaignID)
			if err != nil {
				return nil, fmt.Errorf("list steps for campaign %s: %w", r.CampaignID, err)
			}
			c.steps[r.CampaignID] = steps
		}
		step, ok := stepByOrder(steps, r.CurrentStepOrder+1)
		if !ok {
			// Active recipient past the last step; reconciliation will
			// not pick it up, so surface it.
			logger.Warn("active recipient has no next step",
				"recipient_id", r.ID, "campaign_id", r.CampaignID, "current_step", r.CurrentStepOrder)
			continue
		}
		out = append(out, Due{Recipient: r, Step: step})
	}
	return out, nil
}
