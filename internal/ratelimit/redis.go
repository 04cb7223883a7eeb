package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ratelimit:"

// ErrUnexpectedReply is returned when the window script replies in an unknown shape.
var ErrUnexpectedReply = errors.New("unexpected redis reply")

// slidingWindowScript prunes, counts and conditionally records a hit in one
// round trip. Scores are unix milliseconds.
//
// KEYS[1] window key
// ARGV[1] now, ARGV[2] window, ARGV[3] limit, ARGV[4] member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	admitted = 1
end
redis.call('PEXPIRE', key, window)

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
	oldest = tonumber(first[2])
end

return {count, admitted, oldest}
`)

// RedisStore implements a sliding window store on Redis sorted sets, so
// instances sharing a Redis share quotas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix uses "ratelimit:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit prunes, checks and records a request for key atomically.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("redis sliding window: %w: %v", ErrUnexpectedReply, res)
	}

	w := Window{
		Count:    int(res[0]),
		Admitted: res[1] == 1,
	}
	if res[2] > 0 {
		w.Oldest = time.UnixMilli(res[2])
	}
	return w, nil
}

// Reset deletes the window for key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the server lifecycle.
func (*RedisStore) Close() error {
	return nil
}
