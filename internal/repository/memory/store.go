// Package memory is an in-process implementation of every repository
// interface, for tests and single-node development. Each method takes the
// store mutex for its whole duration, which gives it the same atomicity as
// the PostgreSQL transaction it stands in for.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

// Store holds campaigns, steps, recipients and accounts.
type Store struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	steps      map[string][]domain.CampaignStep // by campaign
	recipients map[string]*domain.Recipient
	accounts   map[string]*domain.Account // by ID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns:  make(map[string]*domain.Campaign),
		steps:      make(map[string][]domain.CampaignStep),
		recipients: make(map[string]*domain.Recipient),
		accounts:   make(map[string]*domain.Account),
	}
}

var (
	_ progression.Repository    = (*Store)(nil)
	_ campaign.Repository       = (*Store)(nil)
	_ dispatch.Store            = (*Store)(nil)
	_ dispatch.AccountRegistry  = (*Store)(nil)
	_ campaign.AccountDirectory = (*Store)(nil)
)

// PutAccount registers or replaces a sending account.
func (s *Store) PutAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = &a
}

// Recipient returns a copy of a recipient, for assertions.
func (s *Store) Recipient(id string) (domain.Recipient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return domain.Recipient{}, false
	}
	return copyRecipient(r), true
}

// RecipientsOf returns copies of a campaign's recipients, oldest first.
func (s *Store) RecipientsOf(campaignID string) []domain.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipientsOf(campaignID, func(*domain.Recipient) bool { return true })
}

// --- accounts ---

func (s *Store) GetAccountByPlatformUserID(_ context.Context, workspaceID, platformUserID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.WorkspaceID == workspaceID && a.PlatformUserID == platformUserID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, dispatch.ErrAccountNotFound
}

func (s *Store) OwnedAccountIDs(_ context.Context, workspaceID string, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := make(map[string]bool, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok && a.WorkspaceID == workspaceID {
			owned[id] = true
		}
	}
	return owned, nil
}

// --- campaigns ---

func (s *Store) Get(_ context.Context, workspaceID, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, campaign.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (s *Store) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, progression.ErrCampaignNotFound
	}
	return copyCampaign(c), nil
}

func (s *Store) List(_ context.Context, workspaceID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.WorkspaceID != workspaceID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	if f.Offset >= len(out) {
		return []domain.Campaign{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (s *Store) ListRunningCampaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignRunning {
			out = append(out, *copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Create(_ context.Context, c *domain.Campaign, steps []domain.CampaignStep, recipients []domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = copyCampaign(c)
	st := make([]domain.CampaignStep, len(steps))
	copy(st, steps)
	sort.Slice(st, func(i, j int) bool { return st[i].Order < st[j].Order })
	s.steps[c.ID] = st
	for i := range recipients {
		r := copyRecipient(&recipients[i])
		s.recipients[r.ID] = &r
	}
	return nil
}

func (s *Store) ListSteps(_ context.Context, campaignID string) ([]domain.CampaignStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CampaignStep, len(s.steps[campaignID]))
	copy(out, s.steps[campaignID])
	return out, nil
}

func (s *Store) Stats(_ context.Context, campaignID string) (domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.CampaignStats
	for _, r := range s.recipients {
		if r.CampaignID != campaignID {
			continue
		}
		switch r.Status {
		case domain.RecipientPending:
			st.Pending++
		case domain.RecipientInProgress:
			st.InProgress++
		case domain.RecipientCompleted:
			st.Completed++
		case domain.RecipientFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *Store) Start(_ context.Context, workspaceID, id string, now time.Time, firstDelay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.WorkspaceID != workspaceID {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft {
		return campaign.ErrInvalidTransition
	}
	c.Status = domain.CampaignRunning
	started := now
	c.StartedAt = &started
	c.UpdatedAt = now
	at := now.Add(firstDelay)
	for _, r := range s.recipients {
		if r.CampaignID == id && r.Status == domain.RecipientPending && r.NextActionAt == nil {
			t := at
			r.NextActionAt = &t
		}
	}
	return nil
}

func (s *Store) SetStatus(_ context.Context, workspaceID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.WorkspaceID != workspaceID {
		return campaign.ErrNotFound
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			c.UpdatedAt = now
			return nil
		}
	}
	return campaign.ErrInvalidTransition
}

// --- progression ---

func (s *Store) GetRecipient(_ context.Context, id string) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return nil, progression.ErrRecipientNotFound
	}
	cp := copyRecipient(r)
	return &cp, nil
}

func (s *Store) ListDueRecipients(_ context.Context, campaignID string, now time.Time) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipientsOf(campaignID, func(r *domain.Recipient) bool { return r.IsDue(now) }), nil
}

func (s *Store) ListDueRecipientsForAccount(_ context.Context, accountID string, now time.Time, limit int, excludeCampaigns []string) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[string]bool, len(excludeCampaigns))
	for _, id := range excludeCampaigns {
		excluded[id] = true
	}
	var out []domain.Recipient
	for _, r := range s.recipients {
		if r.AccountID != accountID || !r.IsDue(now) || excluded[r.CampaignID] {
			continue
		}
		if c, ok := s.campaigns[r.CampaignID]; !ok || c.Status != domain.CampaignRunning {
			continue
		}
		out = append(out, copyRecipient(r))
	}
	sortOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ApplyTransition(_ context.Context, t progression.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[t.RecipientID]
	if !ok {
		return false, progression.ErrRecipientNotFound
	}
	if !r.Status.IsActive() || r.CurrentStepOrder != t.FromStep {
		return false, progression.ErrStaleTransition
	}
	c, ok := s.campaigns[r.CampaignID]
	if !ok {
		return false, progression.ErrCampaignNotFound
	}

	r.CurrentStepOrder = t.ToStep
	r.Status = t.Status
	r.NextActionAt = copyTime(t.NextActionAt)
	r.ErrorMessage = t.ErrorMessage
	processed := t.Now
	r.LastProcessedAt = &processed

	switch t.Outcome {
	case domain.OutcomeSent:
		c.MessagesSent++
		if t.Status == domain.RecipientCompleted {
			c.SentCount++
		}
	case domain.OutcomeFailed:
		c.FailedCount++
	}
	c.UpdatedAt = t.Now

	if !t.Terminal() {
		return false, nil
	}
	return s.completeIfDrained(c, t.Now), nil
}

func (s *Store) ActivateDue(_ context.Context, campaignID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; !ok || c.Status != domain.CampaignRunning {
		return 0, nil
	}
	n := 0
	for _, r := range s.recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientPending && r.IsDue(now) {
			r.Status = domain.RecipientInProgress
			n++
		}
	}
	return n, nil
}

func (s *Store) CompleteIfDrained(_ context.Context, campaignID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return false, progression.ErrCampaignNotFound
	}
	if c.Status != domain.CampaignRunning {
		return false, nil
	}
	return s.completeIfDrained(c, now), nil
}

// completeIfDrained must be called with s.mu held.
func (s *Store) completeIfDrained(c *domain.Campaign, now time.Time) bool {
	if c.Status != domain.CampaignRunning && c.Status != domain.CampaignPaused {
		return false
	}
	for _, r := range s.recipients {
		if r.CampaignID == c.ID && r.Status.IsActive() {
			return false
		}
	}
	c.Status = domain.CampaignCompleted
	done := now
	c.CompletedAt = &done
	c.UpdatedAt = now
	return true
}

// recipientsOf must be called with s.mu held.
func (s *Store) recipientsOf(campaignID string, keep func(*domain.Recipient) bool) []domain.Recipient {
	var out []domain.Recipient
	for _, r := range s.recipients {
		if r.CampaignID == campaignID && keep(r) {
			out = append(out, copyRecipient(r))
		}
	}
	sortOldestFirst(out)
	return out
}

func sortOldestFirst(rs []domain.Recipient) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.StartedAt = copyTime(c.StartedAt)
	cp.CompletedAt = copyTime(c.CompletedAt)
	return &cp
}

func copyRecipient(r *domain.Recipient) domain.Recipient {
	cp := *r
	cp.NextActionAt = copyTime(r.NextActionAt)
	cp.LastProcessedAt = copyTime(r.LastProcessedAt)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
