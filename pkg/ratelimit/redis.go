package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowLua atomically performs the purge-count-insert step of the
// sliding-window log for one identifier.
// KEYS[1] = window key (a ZSET of event timestamps)
// ARGV[1] = now in milliseconds
// ARGV[2] = window length in milliseconds
// ARGV[3] = max requests
// ARGV[4] = unique member for the new event
//
// Returns {allowed, count, resetMillis}.
var slidingWindowLua = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local reset = now + window
  if oldest[2] then
    reset = tonumber(oldest[2]) + window
  end
  return {0, count, reset}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, now + window}
`)

// RedisLimiter is a Redis-backed sliding-window log limiter for shared
// (multi-replica) deployments. Each identifier's window lives in a ZSET
// whose expiry is refreshed on insert, so abandoned windows self-clean.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
// If prefix is empty it defaults to "ratelimit".
func NewRedisLimiter(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{client: client, prefix: prefix, logger: logger}
}

// Check records an event for identifier if the window has room.
// On Redis failure it fails open and allows the request; this is a
// documented availability tradeoff, logged at warn level.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, policy Policy) (Result, error) {
	key := l.prefix + ":" + identifier
	now := time.Now()
	windowMillis := policy.Interval.Milliseconds()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), rand.Int63())

	values, err := slidingWindowLua.Run(ctx, l.client, []string{key},
		now.UnixMilli(), windowMillis, policy.MaxRequests, member,
	).Int64Slice()
	if err != nil || len(values) != 3 {
		l.logger.Warn("rate limiter unavailable, failing open",
			"identifier", identifier,
			"error", err,
		)
		return Result{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests - 1,
			ResetAt:   now.Add(policy.Interval).Unix(),
		}, nil
	}

	allowed := values[0] == 1
	count := int(values[1])
	resetAt := (values[2] + 999) / 1000 // round up to whole seconds

	result := Result{
		Allowed: allowed,
		Limit:   policy.MaxRequests,
		ResetAt: resetAt,
	}
	if allowed {
		result.Remaining = policy.MaxRequests - count
	}
	return result, nil
}
