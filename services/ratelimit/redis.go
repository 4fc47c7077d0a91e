package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrement runs atomically on the Redis server, which makes the
// server the single writer for each key across gateway replicas.
var checkAndIncrement = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {current, 0}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
return {current, 1}
`)

// RedisCounter is a Counter shared by every replica through Redis
type RedisCounter struct {
	client redis.Scripter
	prefix string
}

// NewRedisCounter creates a RedisCounter. prefix namespaces the keys.
func NewRedisCounter(client redis.Scripter, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

// CheckAndIncrement implements Counter
func (c *RedisCounter) CheckAndIncrement(ctx context.Context, key string, limit int, expiresAt time.Time) (int, bool, error) {
	res, err := checkAndIncrement.Run(ctx, c.client, []string{c.prefix + key}, limit, expiresAt.UnixMilli()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis rate limit script: unexpected reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}
