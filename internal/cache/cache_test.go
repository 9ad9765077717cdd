package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "demo.myshopify.com|collection|42", Key(" Demo.myshopify.com ", "collection", "", "42"))
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory[[]string]()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, "a", []string{"1", "2"}, time.Minute))
	require.NoError(t, m.Put(ctx, "b", []string{"3"}, 0))

	got, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, got)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok, "zero ttl never expires")

	require.NoError(t, m.Delete(ctx, "b"))
	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok)
}

func TestRedisPropagatesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedis[[]string](client, "collections")
	assert.Equal(t, "promosync:collections:k", c.key("k"))

	_, ok, err := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Error(t, err)
}
