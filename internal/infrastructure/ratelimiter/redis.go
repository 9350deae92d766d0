package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldTokens   = "tokens"
	fieldLastFill = "last_fill"
)

// RedisStore keeps each bucket in one hash so every process behind the proxy
// draws from the same bucket.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix + "rl:"}
}

func (s *RedisStore) Load(ctx context.Context, key string) (Bucket, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, fieldTokens, fieldLastFill).Result()
	if err != nil {
		return Bucket{}, fmt.Errorf("redis: failed to load bucket: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Bucket{}, ErrBucketMiss
	}

	tokens, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return Bucket{}, fmt.Errorf("redis: corrupt bucket tokens: %w", err)
	}
	lastFill, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return Bucket{}, fmt.Errorf("redis: corrupt bucket fill time: %w", err)
	}
	return Bucket{Tokens: tokens, LastFill: lastFill}, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, b Bucket, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.prefix+key, fieldTokens, b.Tokens, fieldLastFill, b.LastFill)
		if ttl > 0 {
			pipe.PExpire(ctx, s.prefix+key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to save bucket: %w", err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (s *RedisStore) Close() error {
	return nil
}
