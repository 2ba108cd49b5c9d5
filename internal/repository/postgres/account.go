package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

// AccountRepo reads connected Instagram accounts. Session material never
// leaves the database; only its presence is reported.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account registry.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

var (
	_ dispatch.AccountRegistry  = (*AccountRepo)(nil)
	_ campaign.AccountDirectory = (*AccountRepo)(nil)
)

func (r *AccountRepo) GetAccountByPlatformUserID(ctx context.Context, workspaceID, platformUserID string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, platform_user_id, username, daily_limit,
		       COALESCE(session_cookies, '') <> ''
		FROM instagram_accounts
		WHERE workspace_id = $1 AND platform_user_id = $2
	`, workspaceID, platformUserID).Scan(
		&a.ID, &a.WorkspaceID, &a.PlatformUserID, &a.Username, &a.DailyLimit, &a.HasSession,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) OwnedAccountIDs(ctx context.Context, workspaceID string, ids []string) (map[string]bool, error) {
	owned := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM instagram_accounts
		WHERE workspace_id = $1 AND id = ANY($2)
	`, workspaceID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list workspace accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		owned[id] = true
	}
	return owned, rows.Err()
}
