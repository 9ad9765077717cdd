package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	errLockKeyEmpty = errors.New("lock key is empty")
	errLockTTL      = errors.New("lock ttl must be positive")
)

// Lock is a token-guarded mutual exclusion keyed by string.
type Lock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// NewLock returns a redis lock shared across replicas when a client is
// configured and a process-local lock otherwise.
func NewLock(client *redis.Client) Lock {
	if client == nil {
		return NewLocalLocker()
	}
	return NewLocker(client)
}

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errLockKeyEmpty
	}
	if ttl <= 0 {
		return "", false, errLockTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is the single-replica Lock.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errLockKeyEmpty
	}
	if ttl <= 0 {
		return "", false, errLockTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.held[key]; ok && entry.token == token {
		delete(l.held, key)
	}
	return nil
}
