// Package ratelimit bounds how hard the engine leans on a provider: a
// sliding-window request limiter plus a daily token budget, both backed by
// Redis and both failing open when Redis is away.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter performs sliding-window rate limiting per provider, backed by
// Redis sorted sets.
type Limiter struct {
	rdb *redis.Client
}

// NewLimiter creates a limiter. A nil client means every check passes.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// slidingWindowScript atomically drops expired entries, counts, and admits.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro)
// ARGV[3] = limit
// ARGV[4] = key TTL seconds
// Returns: [current_count, 1=allowed/0=denied]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1}
end

redis.call('EXPIRE', key, ttl)
return {count, 0}
`)

// Allow checks whether another request to the provider fits inside the
// window. Zero limit disables the check.
func (l *Limiter) Allow(ctx context.Context, provider string, limit int64, window time.Duration) (LimitResult, error) {
	if l.rdb == nil || limit <= 0 {
		return LimitResult{Allowed: true, Remaining: limit - 1, ResetAt: time.Now().Add(window)}, nil
	}

	now := time.Now()
	windowStart := now.Add(-window).UnixMicro()
	ttlSecs := int64(window.Seconds()) + 1

	redisKey := fmt.Sprintf("muse:rl:%s", provider)

	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{redisKey},
		windowStart, now.UnixMicro(), limit, ttlSecs,
	).Int64Slice()
	if err != nil {
		// Fail open: a Redis outage must not stall the writer.
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	count := result[0]
	allowed := result[1] == 1
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = window / 2
	}

	return LimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    now.Add(window),
		RetryAfter: retryAfter,
	}, nil
}
