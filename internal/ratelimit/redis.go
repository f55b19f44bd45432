package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and takes one token atomically. State is
// two keys per bucket: the token count and the last-refill timestamp
// in milliseconds. Returns [allowed (0/1), remaining, retry_ms].
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local tokens = tonumber(redis.call('GET', tokens_key))
local last_ms = tonumber(redis.call('GET', ts_key))
if tokens == nil then
    tokens = burst
    last_ms = now_ms
end

local elapsed = math.max(0, now_ms - last_ms)
tokens = math.min(burst, tokens + elapsed / 1000 * rate)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
elseif rate > 0 then
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

-- Expire once the bucket would be full again, plus slack
local ttl_ms = 60000
if rate > 0 then
    ttl_ms = math.ceil(burst / rate * 1000) * 2
end
redis.call('SET', tokens_key, tokens, 'PX', ttl_ms)
redis.call('SET', ts_key, now_ms, 'PX', ttl_ms)

return {allowed, math.floor(tokens), retry_ms}
`)

// RedisStore is a Redis-backed token bucket store shared by every
// gateway instance, so a caller cannot multiply their budget by
// spreading requests across replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	nowMs  func() int64
}

// NewRedisStore creates a store over the given client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gw:rl:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Take consumes one token for key. Errors are returned to the caller;
// the limiter's user decides whether to fail open.
func (s *RedisStore) Take(ctx context.Context, key string, p Profile) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	keys := []string{s.prefix + key + ":tokens", s.prefix + key + ":ts"}
	result, err := tokenBucketScript.Run(ctx, s.client, keys,
		p.ReplenishRate,
		p.BurstCapacity,
		s.nowMs(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    result[0] == 1,
		Remaining:  int(result[1]),
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
		Limit:      p.BurstCapacity,
	}, nil
}
