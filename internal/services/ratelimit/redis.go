package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBucketPrefix = "ratelimit:"

// takeTokenScript refills and takes one token atomically.
// KEYS[1]: bucket hash
// ARGV[1]: capacity (tokens)
// ARGV[2]: refill rate (tokens per millisecond)
// ARGV[3]: current timestamp (unix milliseconds)
// ARGV[4]: key ttl (milliseconds)
const takeTokenScript = `
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil or ts == nil then
		tokens = capacity
		ts = now
	end

	local elapsed = now - ts
	if elapsed < 0 then elapsed = 0 end
	tokens = math.min(capacity, tokens + elapsed * rate)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return allowed
`

// RedisStore keeps token buckets in redis so every instance shares them.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a redis-backed bucket store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisBucketPrefix, now: time.Now}
}

func (s *RedisStore) Take(ctx context.Context, key string, capacity int64, refillPerSecond float64) (bool, error) {
	if refillPerSecond <= 0 {
		return false, fmt.Errorf("invalid refill rate %v", refillPerSecond)
	}

	// Keep the key until the bucket would be full again, plus a minute.
	fullAfter := time.Duration(float64(capacity)/refillPerSecond*float64(time.Second)) + time.Minute

	args := []any{
		capacity,
		refillPerSecond / 1000,
		s.now().UnixMilli(),
		fullAfter.Milliseconds(),
	}

	allowed, err := s.client.Eval(ctx, takeTokenScript, []string{s.prefix + key}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to take rate limit token: %w", err)
	}
	return allowed == 1, nil
}
