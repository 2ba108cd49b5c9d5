// Package ratelimit answers how many more messages a sending account (or a
// campaign) may dispatch today, and records confirmed sends.
//
// Counters are keyed by (key, UTC day) so they reset at midnight by keying,
// never by mutation. Every CounterStore must increment atomically relative to
// concurrent callers for the same key and day; a read-modify-write in Go
// would let two workers both spend the last slot of the daily cap.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
)

// CounterStore persists per-day message counters.
type CounterStore interface {
	// Count returns the counter for key on day, or 0 if it doesn't exist.
	Count(ctx context.Context, key, day string) (int, error)
	// Increment atomically adds one to the counter, creating it if absent,
	// and returns the new value.
	Increment(ctx context.Context, key, day string) (int, error)
}

// Budget is the daily allowance snapshot exposed to external senders.
type Budget struct {
	Sent      int `json:"sent"`
	Max       int `json:"max"`
	Available int `json:"available"`
}

// Limiter computes remaining daily budgets on top of a CounterStore.
type Limiter struct {
	store CounterStore
}

// New creates a limiter backed by the given counter store.
func New(store CounterStore) *Limiter {
	return &Limiter{store: store}
}

// AccountKey is the counter key for a sending account.
func AccountKey(accountID string) string { return "account:" + accountID }

// CampaignKey is the counter key for a campaign's own daily cap.
func CampaignKey(campaignID string) string { return "campaign:" + campaignID }

// Budget returns the account's sent/max/available figures for today.
func (l *Limiter) Budget(ctx context.Context, accountID string, dailyLimit int, today time.Time) (Budget, error) {
	return l.budget(ctx, AccountKey(accountID), dailyLimit, today)
}

// RemainingBudget returns max(0, dailyLimit - sentToday) for the account.
func (l *Limiter) RemainingBudget(ctx context.Context, accountID string, dailyLimit int, today time.Time) (int, error) {
	b, err := l.Budget(ctx, accountID, dailyLimit, today)
	if err != nil {
		return 0, err
	}
	return b.Available, nil
}

// RecordSend counts one confirmed send for the account today.
func (l *Limiter) RecordSend(ctx context.Context, accountID string, today time.Time) error {
	if _, err := l.store.Increment(ctx, AccountKey(accountID), domain.DayKey(today)); err != nil {
		return fmt.Errorf("record send for account %s: %w", accountID, err)
	}
	return nil
}

// CampaignBudget returns the campaign's remaining messages-per-day allowance.
func (l *Limiter) CampaignBudget(ctx context.Context, campaignID string, perDay int, today time.Time) (Budget, error) {
	return l.budget(ctx, CampaignKey(campaignID), perDay, today)
}

// RecordCampaignSend counts one confirmed send against the campaign cap.
func (l *Limiter) RecordCampaignSend(ctx context.Context, campaignID string, today time.Time) error {
	if _, err := l.store.Increment(ctx, CampaignKey(campaignID), domain.DayKey(today)); err != nil {
		return fmt.Errorf("record send for campaign %s: %w", campaignID, err)
	}
	return nil
}

func (l *Limiter) budget(ctx context.Context, key string, limit int, today time.Time) (Budget, error) {
	if limit < 0 {
		limit = 0
	}
	sent, err := l.store.Count(ctx, key, domain.DayKey(today))
	if err != nil {
		return Budget{}, fmt.Errorf("read daily count %s: %w", key, err)
	}
	return Budget{Sent: sent, Max: limit, Available: remaining(limit, sent)}, nil
}

// remaining clamps limit-sent into [0, limit].
func remaining(limit, sent int) int {
	if sent < 0 {
		sent = 0
	}
	avail := limit - sent
	if avail < 0 {
		return 0
	}
	return avail
}
