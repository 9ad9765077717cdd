package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis stores JSON encoded values under a namespace prefix.
type Redis[T any] struct {
	client *redis.Client
	prefix string
}

func NewRedis[T any](client *redis.Client, namespace string) *Redis[T] {
	return &Redis[T]{client: client, prefix: "promosync:" + namespace + ":"}
}

func (r *Redis[T]) key(key string) string {
	return r.prefix + key
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		// A payload written by an older release is treated as a miss.
		_ = r.client.Del(ctx, r.key(key)).Err()
		return zero, false, nil
	}
	return value, true, nil
}

func (r *Redis[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.key(key), raw, ttl).Err()
}

func (r *Redis[T]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
