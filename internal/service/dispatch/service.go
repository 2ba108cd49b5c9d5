package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

// DefaultMaxJobs bounds a single pull when the caller passes no limit.
const DefaultMaxJobs = 5

// Config holds dispatch tunables.
type Config struct {
	MaxJobsPerPull  int
	BatchTimeout    time.Duration
	CampaignTimeout time.Duration
}

// Service implements job materialization, status reporting and the batch.
type Service struct {
	store     Store
	accounts  AccountRegistry
	engine    Progression
	limiter   Limiter
	renderer  *Renderer
	publisher Publisher
	archive   RunArchive
	newLock   func() Locker
	cfg       Config
}

// Option configures optional collaborators.
type Option func(*Service)

// WithPublisher emits lifecycle events through p.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithRunArchive stores every batch result in a.
func WithRunArchive(a RunArchive) Option { return func(s *Service) { s.archive = a } }

// WithBatchLock de-duplicates concurrent batch runs. newLock is called once
// per run.
func WithBatchLock(newLock func() Locker) Option { return func(s *Service) { s.newLock = newLock } }

// NewService wires the dispatch service.
func NewService(store Store, accounts AccountRegistry, engine Progression, limiter Limiter, cfg Config, opts ...Option) *Service {
	if cfg.MaxJobsPerPull <= 0 {
		cfg.MaxJobsPerPull = DefaultMaxJobs
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Second
	}
	if cfg.CampaignTimeout <= 0 || cfg.CampaignTimeout > cfg.BatchTimeout {
		cfg.CampaignTimeout = cfg.BatchTimeout
	}
	s := &Service{
		store:    store,
		accounts: accounts,
		engine:   engine,
		limiter:  limiter,
		renderer: NewRenderer(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PullResult is what an external sender receives for one pull.
type PullResult struct {
	Jobs         []domain.Job `json:"jobs"`
	Limit        Limit        `json:"limit"`
	AccountReady bool         `json:"accountReady"`
}

// Limit mirrors ratelimit.Budget on the wire.
type Limit struct {
	Sent      int `json:"sent"`
	Max       int `json:"max"`
	Available int `json:"available"`
}

// MaterializeJobs returns up to maxJobs rendered jobs for the account
// identified by platformUserID. maxJobs <= 0 uses the configured default.
func (s *Service) MaterializeJobs(ctx context.Context, workspaceID, platformUserID string, now time.Time, maxJobs int) (*PullResult, error) {
	if maxJobs <= 0 || maxJobs > s.cfg.MaxJobsPerPull {
		maxJobs = s.cfg.MaxJobsPerPull
	}

	acct, err := s.accounts.GetAccountByPlatformUserID(ctx, workspaceID, platformUserID)
	if err != nil {
		return nil, err
	}

	res := &PullResult{Jobs: []domain.Job{}, Limit: Limit{Max: max(acct.DailyLimit, 0)}}
	if !acct.Ready() {
		logger.Warn("account not ready", "account_id", acct.ID)
		return res, nil
	}
	res.AccountReady = true

	budget, err := s.limiter.Budget(ctx, acct.ID, acct.DailyLimit, now)
	if err != nil {
		return nil, err
	}
	res.Limit = Limit(budget)
	if budget.Available == 0 {
		return res, nil
	}

	want := min(budget.Available, maxJobs)
	campaigns := make(map[string]*campaignGate)
	taken := make(map[string]bool)
	var gatedOut []string
	due := 0

	// Gated campaigns are excluded and the selection re-run, so a closed or
	// capped campaign cannot use up slots that other campaigns could fill.
	for {
		batch, err := s.engine.SelectDueForAccount(ctx, acct.ID, now, want, gatedOut...)
		if err != nil {
			return nil, err
		}
		due = len(batch)

		newlyGated := false
		for _, d := range batch {
			if len(res.Jobs) >= want {
				break
			}
			if taken[d.Recipient.ID] {
				continue
			}
			gate, err := s.gate(ctx, campaigns, d.Recipient.CampaignID, now)
			if err != nil {
				return nil, err
			}
			if !gate.take() {
				if !gate.excluded {
					gate.excluded = true
					gatedOut = append(gatedOut, gate.campaign.ID)
					newlyGated = true
				}
				continue
			}
			taken[d.Recipient.ID] = true
			res.Jobs = append(res.Jobs, s.buildJob(gate.campaign, d, now))
		}

		if len(res.Jobs) >= want || len(batch) < want || !newlyGated {
			break
		}
	}

	logger.Debug("jobs materialized", "account_id", acct.ID, "jobs", len(res.Jobs),
		"due", due, "gated_campaigns", len(gatedOut), "available", budget.Available)
	return res, nil
}

func (s *Service) buildJob(c *domain.Campaign, d progression.Due, now time.Time) domain.Job {
	variant := PickVariant(d.Recipient.ID, d.Step)
	msg, err := s.renderer.Render(variant, Bindings(d.Recipient))
	if err != nil {
		logger.Warn("template render fell back to plain substitution",
			"campaign_id", c.ID, "step", d.Step.Order, "error", err)
	}

	scheduledAt := now
	if d.Recipient.NextActionAt != nil {
		scheduledAt = *d.Recipient.NextActionAt
	}
	return domain.Job{
		ID:                domain.FormatJobID(d.Recipient.ID, d.Step.Order),
		CampaignID:        c.ID,
		CampaignName:      c.Name,
		LeadID:            d.Recipient.LeadID,
		RecipientUsername: d.Recipient.Username,
		RecipientUserID:   d.Recipient.PlatformUserID,
		JobType:           domain.JobTypeDM,
		Message:           msg,
		ScheduledAt:       scheduledAt,
		StepOrder:         d.Step.Order,
	}
}

// campaignGate tracks, within one pull, whether a campaign may hand out
// more jobs: it must be inside its send window and under its own daily cap.
type campaignGate struct {
	campaign  *domain.Campaign
	open      bool
	remaining int // -1 means uncapped
	excluded  bool
}

func (g *campaignGate) take() bool {
	if !g.open {
		return false
	}
	if g.remaining < 0 {
		return true
	}
	if g.remaining == 0 {
		return false
	}
	g.remaining--
	return true
}

func (s *Service) gate(ctx context.Context, cache map[string]*campaignGate, campaignID string, now time.Time) (*campaignGate, error) {
	if g, ok := cache[campaignID]; ok {
		return g, nil
	}
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", campaignID, err)
	}
	g := &campaignGate{campaign: c, open: c.SendWindow.Contains(now), remaining: -1}
	if g.open && c.SendWindow.MessagesPerDay > 0 {
		b, err := s.limiter.CampaignBudget(ctx, c.ID, c.SendWindow.MessagesPerDay, now)
		if err != nil {
			return nil, err
		}
		g.remaining = b.Available
	}
	cache[campaignID] = g
	return g, nil
}

// ReportResult acknowledges a status report.
type ReportResult struct {
	JobID      string                        `json:"jobId"`
	Transition *progression.TransitionResult `json:"transition"`
}

// ReportStatus records a sender's outcome for a job. Jobs of another
// workspace are reported as not found. On SENT the account and campaign
// counters are incremented before the recipient advances.
func (s *Service) ReportStatus(ctx context.Context, workspaceID, jobID string, status domain.Outcome, errMsg string, now time.Time) (*ReportResult, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	recipientID, step, err := domain.ParseJobID(jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}

	r, err := s.store.GetRecipient(ctx, recipientID)
	if errors.Is(err, progression.ErrRecipientNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	c, err := s.store.GetCampaign(ctx, r.CampaignID)
	if errors.Is(err, progression.ErrCampaignNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if c.WorkspaceID != workspaceID {
		return nil, ErrJobNotFound
	}
	// A job is current only for the recipient's next step once it is due.
	if r.CurrentStepOrder+1 != step || !r.IsDue(now) {
		return nil, ErrStaleJob
	}

	if status == domain.OutcomeSent {
		if err := s.limiter.RecordSend(ctx, r.AccountID, now); err != nil {
			return nil, err
		}
		if err := s.limiter.RecordCampaignSend(ctx, r.CampaignID, now); err != nil {
			logger.Error("campaign send counter write failed", "campaign_id", r.CampaignID, "error", err)
		}
	}

	tr, err := s.engine.ReportOutcome(ctx, r.ID, step, status, errMsg, now)
	if err != nil {
		if status == domain.OutcomeSent {
			// The counter already moved; a retried report will count again.
			logger.Error("send counted but transition failed",
				"job_id", jobID, "account_id", r.AccountID, "error", err)
		}
		if errors.Is(err, progression.ErrStaleTransition) {
			return nil, ErrStaleJob
		}
		if errors.Is(err, progression.ErrRecipientNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	s.publish(ctx, EventRecipientOutcome, map[string]any{
		"jobId":       jobID,
		"recipientId": r.ID,
		"campaignId":  r.CampaignID,
		"outcome":     string(status),
		"status":      string(tr.Status),
		"step":        step,
		"error":       errMsg,
		"at":          now.UTC(),
	})
	if tr.CampaignCompleted {
		s.publishCompleted(ctx, r.CampaignID, now)
	}
	return &ReportResult{JobID: jobID, Transition: tr}, nil
}

func (s *Service) publish(ctx context.Context, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		logger.Warn("event publish failed", "routing_key", key, "error", err)
	}
}

func (s *Service) publishCompleted(ctx context.Context, campaignID string, now time.Time) {
	s.publish(ctx, EventCampaignCompleted, map[string]any{
		"campaignId": campaignID,
		"at":         now.UTC(),
	})
}
