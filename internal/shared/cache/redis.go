package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/postnow/server/internal/shared/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a new Redis client.
func NewRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// Close closes the Redis client.
func Close(client redis.UniversalClient) error {
	return client.Close()
}

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter is a sliding-window rate limiter backed by Redis.
type RateLimiter struct {
	client redis.UniversalClient
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow reports whether one more event is permitted for key within window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := rateLimitKeyPrefix + key

	pipe := r.client.Pipeline()
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	// Drop entries that fell out of the window, then count what remains.
	pipe.ZRemRangeByScore(ctx, fullKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, fullKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if countCmd.Val()+1 > int64(limit) {
		return false, nil
	}

	addPipe := r.client.Pipeline()
	addPipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d", now),
	})
	addPipe.Expire(ctx, fullKey, window)
	if _, err := addPipe.Exec(ctx); err != nil {
		return false, err
	}

	return true, nil
}
