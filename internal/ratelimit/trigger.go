package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/promosync/internal/config"
	"golang.org/x/time/rate"
)

const keyAdminTrigger = "promosync:trigger:%s:%s"

// TriggerLimiter paces manual admin triggers per shop and action. It uses a
// shared redis bucket when redis is configured and in-process limiters otherwise.
type TriggerLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewTriggerLimiter(cfg config.Config, client *redis.Client) *TriggerLimiter {
	if cfg.AdminTrigger.Rate <= 0 || cfg.AdminTrigger.Burst <= 0 {
		return nil
	}
	return &TriggerLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.AdminTrigger.Rate,
		burst:  cfg.AdminTrigger.Burst,
		local:  make(map[string]*rate.Limiter),
	}
}

func (l *TriggerLimiter) Enabled() bool {
	return l != nil
}

// Allow reports whether a trigger may run now, and if not, when to retry.
func (l *TriggerLimiter) Allow(ctx context.Context, shop, action string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	key := fmt.Sprintf(keyAdminTrigger, strings.ToLower(strings.TrimSpace(shop)), action)

	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err != nil {
			return false, 0, err
		}
		return res.Allowed, res.RetryAfter, nil
	}

	l.mu.Lock()
	limiter, ok := l.local[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.local[key] = limiter
	}
	l.mu.Unlock()

	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}
