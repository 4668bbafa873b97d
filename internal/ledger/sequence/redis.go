package sequence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ledger:seq:"

// RedisStore keeps counters as Redis integers. INCR is atomic across every
// client of the server; a value handed to a transaction that later rolls back
// is not reissued.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Next increments the prefix counter.
func (s *RedisStore) Next(ctx context.Context, prefix string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("sequence: redis client not initialised")
	}
	return s.client.Incr(ctx, redisKeyPrefix+prefix).Result()
}

// Peek returns the current counter value.
func (s *RedisStore) Peek(ctx context.Context, prefix string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("sequence: redis client not initialised")
	}
	value, err := s.client.Get(ctx, redisKeyPrefix+prefix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return value, err
}
