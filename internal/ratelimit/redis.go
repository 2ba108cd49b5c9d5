package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dailyTTL outlives the day bucket so late reads near midnight still see it.
const dailyTTL = 25 * time.Hour

// Lua script for an atomic create-or-increment with expiry on first write.
const incrementLuaScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[1]))
end
return current
`

// RedisStore keeps daily counters in Redis.
type RedisStore struct {
	client          *redis.Client
	incrementScript *redis.Script
}

// NewRedisStore creates a counter store with a pre-compiled Lua script.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:          client,
		incrementScript: redis.NewScript(incrementLuaScript),
	}
}

// NewRedisStoreFromURL connects to Redis and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisStore(client), nil
}

func redisKey(key, day string) string {
	return fmt.Sprintf("dailycount:%s:%s", key, day)
}

func (s *RedisStore) Count(ctx context.Context, key, day string) (int, error) {
	n, err := s.client.Get(ctx, redisKey(key, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, key, day string) (int, error) {
	n, err := s.incrementScript.Run(ctx, s.client,
		[]string{redisKey(key, day)},
		int(dailyTTL.Seconds()),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
