package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimitsAreValid(t *testing.T) {
	require.NoError(t, ValidateLimits(DefaultLimits()))
	assert.Equal(t, 10_000, DefaultLimits().PaginationCap)
}

func TestValidateLimitsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
	}{
		{"zero pagination cap", func(l *Limits) { l.PaginationCap = 0 }},
		{"page size above upstream max", func(l *Limits) { l.PageSize = 500 }},
		{"max delay below base", func(l *Limits) { l.MaxDelay = l.BaseDelay / 2 }},
		{"missing tier quota", func(l *Limits) { l.TierQuotas = map[string]int{"free": 1} }},
		{"negative quota", func(l *Limits) { l.TierQuotas = map[string]int{"free": -1, "basic": 1, "advanced": 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			assert.Error(t, ValidateLimits(l))
		})
	}
}

func TestStaticLimits(t *testing.T) {
	l := DefaultLimits()
	l.BaseDelay = time.Millisecond
	l.MaxDelay = time.Millisecond
	src := StaticLimits(l)
	assert.Equal(t, time.Millisecond, src.Limits().BaseDelay)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	cfg := Load()
	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.False(t, cfg.RedisEnabled())
}
