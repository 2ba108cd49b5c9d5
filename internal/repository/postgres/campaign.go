package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

// CampaignRepo implements the campaign, progression and dispatch
// repositories against PostgreSQL. They share one aggregate: a campaign,
// its steps and its recipients.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

var (
	_ campaign.Repository    = (*CampaignRepo)(nil)
	_ progression.Repository = (*CampaignRepo)(nil)
	_ dispatch.Store         = (*CampaignRepo)(nil)
)

const campaignColumns = `
	id, workspace_id, name, status,
	send_start_time, send_end_time, timezone, messages_per_day,
	total_recipients, sent_count, failed_count, replied_count, messages_sent,
	created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c                      domain.Campaign
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.Status,
		&c.SendWindow.StartTime, &c.SendWindow.EndTime, &c.SendWindow.Timezone, &c.SendWindow.MessagesPerDay,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.RepliedCount, &c.MessagesSent,
		&c.CreatedAt, &startedAt, &completedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartedAt = timePtr(startedAt)
	c.CompletedAt = timePtr(completedAt)
	return &c, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *CampaignRepo) Get(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM dm_campaigns WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM dm_campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progression.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, workspaceID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM dm_campaigns WHERE workspace_id = $1`
	q := `SELECT ` + campaignColumns + ` FROM dm_campaigns WHERE workspace_id = $1`
	args := []interface{}{workspaceID}
	idx := 2

	if f.Status != "" {
		cond := fmt.Sprintf(" AND status = $%d", idx)
		countQ += cond
		q += cond
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.queryCampaigns(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) ListRunningCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	out, err := r.queryCampaigns(ctx,
		`SELECT `+campaignColumns+` FROM dm_campaigns WHERE status = 'RUNNING' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	return out, nil
}

func (r *CampaignRepo) queryCampaigns(ctx context.Context, q string, args ...interface{}) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign, steps []domain.CampaignStep, recipients []domain.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dm_campaigns
			(id, workspace_id, name, status, send_start_time, send_end_time, timezone,
			 messages_per_day, total_recipients, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, c.ID, c.WorkspaceID, c.Name, c.Status,
		c.SendWindow.StartTime, c.SendWindow.EndTime, c.SendWindow.Timezone,
		c.SendWindow.MessagesPerDay, c.TotalRecipients, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for _, s := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dm_campaign_steps (id, campaign_id, step_order, variants, delay_days, delay_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.ID, c.ID, s.Order, pq.Array(s.Variants), s.DelayDays, s.DelayMinutes)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", s.Order, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dm_campaign_recipients
			(id, campaign_id, lead_id, account_id, platform_user_id, username, full_name,
			 current_step_order, status, next_action_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, rc := range recipients {
		_, err := stmt.ExecContext(ctx, rc.ID, c.ID, rc.LeadID, rc.AccountID, rc.PlatformUserID,
			rc.Username, rc.FullName, rc.CurrentStepOrder, rc.Status, rc.NextActionAt, rc.CreatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("%w: duplicate recipient %s", campaign.ErrValidation, rc.Username)
			}
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListSteps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, step_order, variants, delay_days, delay_minutes
		FROM dm_campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_order
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	out := []domain.CampaignStep{}
	for rows.Next() {
		var s domain.CampaignStep
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Order, pq.Array(&s.Variants), &s.DelayDays, &s.DelayMinutes); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Stats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	var st domain.CampaignStats
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM dm_campaign_recipients
		WHERE campaign_id = $1
		GROUP BY status
	`, campaignID)
	if err != nil {
		return st, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status domain.RecipientStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case domain.RecipientPending:
			st.Pending = n
		case domain.RecipientInProgress:
			st.InProgress = n
		case domain.RecipientCompleted:
			st.Completed = n
		case domain.RecipientFailed:
			st.Failed = n
		}
	}
	return st, rows.Err()
}

func (r *CampaignRepo) Start(ctx context.Context, workspaceID, id string, now time.Time, firstDelay time.Duration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE dm_campaigns SET status = 'RUNNING', started_at = $3, updated_at = $3
		WHERE id = $1 AND workspace_id = $2 AND status = 'DRAFT'
	`, id, workspaceID, now)
	if err != nil {
		return fmt.Errorf("start campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrConflict(ctx, tx, workspaceID, id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE dm_campaign_recipients SET next_action_at = $2
		WHERE campaign_id = $1 AND status = 'PENDING' AND next_action_at IS NULL
	`, id, now.Add(firstDelay))
	if err != nil {
		return fmt.Errorf("schedule recipients: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *CampaignRepo) SetStatus(ctx context.Context, workspaceID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE dm_campaigns SET status = $3, updated_at = $4
		WHERE id = $1 AND workspace_id = $2 AND status = ANY($5)
	`, id, workspaceID, to, now, pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrConflict(ctx, r.db, workspaceID, id)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// missOrConflict tells a missing campaign from one in the wrong status
// after a guarded update matched no row.
func (r *CampaignRepo) missOrConflict(ctx context.Context, q queryer, workspaceID, id string) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM dm_campaigns WHERE id = $1 AND workspace_id = $2)`,
		id, workspaceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidTransition
}
