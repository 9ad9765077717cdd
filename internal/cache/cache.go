package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is a typed key/value store with per-entry expiry. A ttl of zero means no expiry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Put(ctx context.Context, key string, value T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key joins non-empty parts with "|" after trimming and lowercasing them.
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
