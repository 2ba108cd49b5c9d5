// Package distlock de-duplicates work across server instances.
//
// Locks here are an optimization: callers must stay correct if two
// holders overlap, e.g. after a lease expires mid-run.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// A lock instance is owned by one goroutine at a time.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock picks Redis when a client is configured, then a PostgreSQL
// advisory lock, then a no-op lock that always succeeds.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return NopLock{}
}

// NopLock always acquires. Used for single-instance deployments and tests.
type NopLock struct{}

func (NopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (NopLock) Release(context.Context) error         { return nil }

// PGAdvisoryLock implements DistLock using session-scoped PostgreSQL
// advisory locks. The lock is tied to one pooled connection, which is held
// from Acquire until Release and returned to the pool afterwards.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire calls pg_try_advisory_lock, which returns immediately.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already held", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the same connection that acquired the lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	return nil
}
