package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

const recipientColumns = `
	r.id, r.campaign_id, r.lead_id, r.account_id, r.platform_user_id, r.username, r.full_name,
	r.current_step_order, r.status, r.next_action_at, r.last_processed_at,
	COALESCE(r.error_message, ''), r.created_at`

func scanRecipient(row rowScanner) (*domain.Recipient, error) {
	var (
		rc                    domain.Recipient
		nextAt, lastProcessed sql.NullTime
	)
	err := row.Scan(
		&rc.ID, &rc.CampaignID, &rc.LeadID, &rc.AccountID, &rc.PlatformUserID, &rc.Username, &rc.FullName,
		&rc.CurrentStepOrder, &rc.Status, &nextAt, &lastProcessed,
		&rc.ErrorMessage, &rc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rc.NextActionAt = timePtr(nextAt)
	rc.LastProcessedAt = timePtr(lastProcessed)
	return &rc, nil
}

func (r *CampaignRepo) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	rc, err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM dm_campaign_recipients r WHERE r.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progression.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return rc, nil
}

func (r *CampaignRepo) ListDueRecipients(ctx context.Context, campaignID string, now time.Time) ([]domain.Recipient, error) {
	return r.queryRecipients(ctx, `
		SELECT `+recipientColumns+`
		FROM dm_campaign_recipients r
		WHERE r.campaign_id = $1
		  AND r.status IN ('PENDING', 'IN_PROGRESS')
		  AND (r.next_action_at IS NULL OR r.next_action_at <= $2)
		ORDER BY r.created_at, r.id
	`, campaignID, now)
}

func (r *CampaignRepo) ListDueRecipientsForAccount(ctx context.Context, accountID string, now time.Time, limit int, excludeCampaigns []string) ([]domain.Recipient, error) {
	if excludeCampaigns == nil {
		excludeCampaigns = []string{}
	}
	return r.queryRecipients(ctx, `
		SELECT `+recipientColumns+`
		FROM dm_campaign_recipients r
		JOIN dm_campaigns c ON c.id = r.campaign_id
		WHERE r.account_id = $1
		  AND c.status = 'RUNNING'
		  AND r.status IN ('PENDING', 'IN_PROGRESS')
		  AND (r.next_action_at IS NULL OR r.next_action_at <= $2)
		  AND NOT (r.campaign_id = ANY($3))
		ORDER BY r.created_at, r.id
		LIMIT $4
	`, accountID, now, pq.Array(excludeCampaigns), limit)
}

func (r *CampaignRepo) queryRecipients(ctx context.Context, q string, args ...interface{}) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list due recipients: %w", err)
	}
	defer rows.Close()

	out := []domain.Recipient{}
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rc)
	}
	return out, rows.Err()
}

// ApplyTransition runs the guarded recipient update, the campaign counter
// bump and the completion check in one transaction. The counter UPDATE
// locks the campaign row, so concurrent terminal transitions of the same
// campaign run their completion checks one after the other and the last
// one sees every committed recipient.
func (r *CampaignRepo) ApplyTransition(ctx context.Context, t progression.Transition) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var errMsg sql.NullString
	if t.ErrorMessage != "" {
		errMsg = sql.NullString{String: t.ErrorMessage, Valid: true}
	}

	var campaignID string
	err = tx.QueryRowContext(ctx, `
		UPDATE dm_campaign_recipients
		SET current_step_order = $2, status = $3, next_action_at = $4,
		    error_message = $5, last_processed_at = $6
		WHERE id = $1
		  AND status IN ('PENDING', 'IN_PROGRESS')
		  AND current_step_order = $7
		RETURNING campaign_id
	`, t.RecipientID, t.ToStep, t.Status, t.NextActionAt, errMsg, t.Now, t.FromStep).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, progression.ErrStaleTransition
	}
	if err != nil {
		return false, fmt.Errorf("update recipient: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dm_campaigns SET `+counterBump(t)+`, updated_at = $2 WHERE id = $1`,
		campaignID, t.Now); err != nil {
		return false, fmt.Errorf("bump campaign counters: %w", err)
	}

	completed := false
	if t.Terminal() {
		completed, err = completeIfDrained(ctx, tx, campaignID, t.Now, "'RUNNING', 'PAUSED'")
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return completed, nil
}

// counterBump returns the SET list for a transition's campaign counters.
// sent_count and failed_count move only when the recipient finishes.
func counterBump(t progression.Transition) string {
	if t.Outcome == domain.OutcomeFailed {
		return "failed_count = failed_count + 1"
	}
	if t.Status == domain.RecipientCompleted {
		return "messages_sent = messages_sent + 1, sent_count = sent_count + 1"
	}
	return "messages_sent = messages_sent + 1"
}

func (r *CampaignRepo) ActivateDue(ctx context.Context, campaignID string, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dm_campaign_recipients SET status = 'IN_PROGRESS'
		WHERE campaign_id = $1
		  AND status = 'PENDING'
		  AND (next_action_at IS NULL OR next_action_at <= $2)
		  AND EXISTS (SELECT 1 FROM dm_campaigns WHERE id = $1 AND status = 'RUNNING')
	`, campaignID, now)
	if err != nil {
		return 0, fmt.Errorf("activate recipients: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *CampaignRepo) CompleteIfDrained(ctx context.Context, campaignID string, now time.Time) (bool, error) {
	return completeIfDrained(ctx, r.db, campaignID, now, "'RUNNING'")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// completeIfDrained completes the campaign when it is in one of statuses
// (a SQL list literal) and has no active recipients.
func completeIfDrained(ctx context.Context, db execer, campaignID string, now time.Time, statuses string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE dm_campaigns SET status = 'COMPLETED', completed_at = $2, updated_at = $2
		WHERE id = $1
		  AND status IN (`+statuses+`)
		  AND NOT EXISTS (
		      SELECT 1 FROM dm_campaign_recipients
		      WHERE campaign_id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
		  )
	`, campaignID, now)
	if err != nil {
		return false, fmt.Errorf("complete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
