package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"whitelist/internal/ratelimit/models"
)

// slidingWindowScript trims the window, then admits the request if it fits.
// KEYS[1] sorted set of request timestamps (unix ms)
// ARGV: now_ms, window_ms, limit, member
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], window)
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then oldestScore = tonumber(oldest[2]) end
return {allowed, count, oldestScore}
`)

// RedisBucketStore shares sliding windows between replicas.
type RedisBucketStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisBucketStore(client redis.UniversalClient, prefix string) *RedisBucketStore {
	return &RedisBucketStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()
	res, err := slidingWindowScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	count := int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(window)
	if res[0] == 1 {
		return &models.Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}, nil
	}
	return &models.Result{Allowed: false, Limit: limit, ResetAt: resetAt, RetryAfter: retryAfter(now, resetAt)}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisBucketStore) key(key string) string {
	return s.prefix + ":ratelimit:" + key
}
