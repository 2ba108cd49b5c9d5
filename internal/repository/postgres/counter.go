package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/dm-dispatch/internal/ratelimit"
)

// CounterRepo stores daily send counters. The upsert increments in a single
// statement, so concurrent senders never lose an update.
type CounterRepo struct{ db *sql.DB }

// NewCounterRepo creates a Postgres-backed counter store.
func NewCounterRepo(db *sql.DB) *CounterRepo { return &CounterRepo{db: db} }

var _ ratelimit.CounterStore = (*CounterRepo)(nil)

func (r *CounterRepo) Count(ctx context.Context, key, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT message_count FROM daily_message_counts
		WHERE counter_key = $1 AND day = $2::date
	`, key, day).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily count: %w", err)
	}
	return n, nil
}

func (r *CounterRepo) Increment(ctx context.Context, key, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO daily_message_counts (counter_key, day, message_count, updated_at)
		VALUES ($1, $2::date, 1, NOW())
		ON CONFLICT (counter_key, day)
		DO UPDATE SET message_count = daily_message_counts.message_count + 1, updated_at = NOW()
		RETURNING message_count
	`, key, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment daily count: %w", err)
	}
	return n, nil
}
