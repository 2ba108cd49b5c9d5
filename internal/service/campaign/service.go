package campaign

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	accounts AccountDirectory
	now      func() time.Time
}

// NewService creates a campaign service backed by the given repository.
// Recipients may only be assigned to accounts the directory places in the
// campaign's workspace.
func NewService(repo Repository, accounts AccountDirectory) *Service {
	return &Service{repo: repo, accounts: accounts, now: time.Now}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string            `json:"name"`
	SendWindow domain.SendWindow `json:"send_window"`
	Steps      []StepInput       `json:"steps"`
	Recipients []RecipientInput  `json:"recipients"`
}

// StepInput describes one step of a new campaign.
type StepInput struct {
	Order        int      `json:"step_order"`
	Variants     []string `json:"variants"`
	DelayDays    int      `json:"delay_days"`
	DelayMinutes int      `json:"delay_minutes"`
}

// RecipientInput describes one target of a new campaign.
type RecipientInput struct {
	LeadID         string `json:"lead_id"`
	AccountID      string `json:"account_id"`
	PlatformUserID string `json:"platform_user_id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
}

// Detail is a campaign with its steps and recipient breakdown.
type Detail struct {
	domain.Campaign
	Steps []domain.CampaignStep `json:"steps"`
	Stats domain.CampaignStats  `json:"stats"`
}

// Create validates and persists a new campaign in DRAFT status.
func (s *Service) Create(ctx context.Context, workspaceID string, in CreateInput) (*Detail, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := in.SendWindow.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(in.Recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:              uuid.New().String(),
		WorkspaceID:     workspaceID,
		Name:            name,
		Status:          domain.CampaignDraft,
		SendWindow:      in.SendWindow,
		TotalRecipients: len(in.Recipients),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	steps := make([]domain.CampaignStep, 0, len(in.Steps))
	for _, st := range in.Steps {
		steps = append(steps, domain.CampaignStep{
			ID:           uuid.New().String(),
			CampaignID:   c.ID,
			Order:        st.Order,
			Variants:     st.Variants,
			DelayDays:    st.DelayDays,
			DelayMinutes: st.DelayMinutes,
		})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	if err := domain.ValidateSteps(steps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	recipients := make([]domain.Recipient, 0, len(in.Recipients))
	seen := make(map[string]bool, len(in.Recipients))
	for i, r := range in.Recipients {
		if r.AccountID == "" {
			return nil, fmt.Errorf("%w: recipient %d: account_id is required", ErrValidation, i)
		}
		if r.PlatformUserID == "" && r.Username == "" {
			return nil, fmt.Errorf("%w: recipient %d: platform_user_id or username is required", ErrValidation, i)
		}
		ident := r.PlatformUserID + "|" + r.Username
		if seen[ident] {
			return nil, fmt.Errorf("%w: recipient %d is a duplicate", ErrValidation, i)
		}
		seen[ident] = true
		recipients = append(recipients, domain.Recipient{
			ID:             uuid.New().String(),
			CampaignID:     c.ID,
			LeadID:         r.LeadID,
			AccountID:      r.AccountID,
			PlatformUserID: r.PlatformUserID,
			Username:       strings.TrimPrefix(r.Username, "@"),
			FullName:       r.FullName,
			Status:         domain.RecipientPending,
			// Spread creation times so oldest-first ordering keeps input order.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := s.checkAccounts(ctx, workspaceID, recipients); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c, steps, recipients); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	logger.Info("campaign created", "campaign_id", c.ID, "workspace_id", workspaceID,
		"steps", len(steps), "recipients", len(recipients))

	return &Detail{
		Campaign: *c,
		Steps:    steps,
		Stats:    domain.CampaignStats{Pending: len(recipients)},
	}, nil
}

func (s *Service) checkAccounts(ctx context.Context, workspaceID string, recipients []domain.Recipient) error {
	var ids []string
	seen := make(map[string]bool)
	for _, r := range recipients {
		if !seen[r.AccountID] {
			seen[r.AccountID] = true
			ids = append(ids, r.AccountID)
		}
	}
	owned, err := s.accounts.OwnedAccountIDs(ctx, workspaceID, ids)
	if err != nil {
		return fmt.Errorf("check accounts: %w", err)
	}
	for _, id := range ids {
		if !owned[id] {
			return fmt.Errorf("%w: account %s is not connected to this workspace", ErrValidation, id)
		}
	}
	return nil
}

// Get returns a campaign with its steps and recipient stats.
func (s *Service) Get(ctx context.Context, workspaceID, id string) (*Detail, error) {
	c, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.repo.ListSteps(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	stats, err := s.repo.Stats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	return &Detail{Campaign: *c, Steps: steps, Stats: stats}, nil
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, workspaceID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, workspaceID, f)
}

// Start launches a DRAFT campaign, or resumes a PAUSED one.
func (s *Service) Start(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case domain.CampaignPaused:
		return s.Resume(ctx, workspaceID, id)
	case domain.CampaignDraft:
	default:
		return nil, fmt.Errorf("%w: cannot start a %s campaign", ErrInvalidTransition, c.Status)
	}

	steps, err := s.repo.ListSteps(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: campaign has no steps", ErrValidation)
	}

	now := s.now().UTC()
	if err := s.repo.Start(ctx, workspaceID, id, now, steps[0].Delay()); err != nil {
		return nil, err
	}
	logger.Info("campaign started", "campaign_id", id, "first_step_delay", steps[0].Delay().String())
	return s.repo.Get(ctx, workspaceID, id)
}

// Pause stops a RUNNING campaign from handing out new jobs. Reports for
// jobs already handed out are still accepted.
func (s *Service) Pause(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	return s.transition(ctx, workspaceID, id, []domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
}

// Resume puts a PAUSED campaign back to RUNNING.
func (s *Service) Resume(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	return s.transition(ctx, workspaceID, id, []domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignRunning)
}

func (s *Service) transition(ctx context.Context, workspaceID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (*domain.Campaign, error) {
	if err := s.repo.SetStatus(ctx, workspaceID, id, from, to, s.now().UTC()); err != nil {
		return nil, err
	}
	logger.Info("campaign status changed", "campaign_id", id, "status", string(to))
	return s.repo.Get(ctx, workspaceID, id)
}
