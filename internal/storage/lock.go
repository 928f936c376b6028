package storage

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker provides short-lived mutual exclusion on a key.
type Locker interface {
	// TryLock acquires key for ttl, returning ErrLocked if another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)

	// Unlock releases key if token still owns it.
	Unlock(ctx context.Context, key, token string) error
}

// InMemoryLocker is a process-local Locker.
type InMemoryLocker struct {
	mu    sync.Mutex
	held  map[string]heldLock
	clock func() time.Time
}

type heldLock struct {
	token   string
	expires time.Time
}

// NewInMemoryLocker creates a process-local locker.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		held:  make(map[string]heldLock),
		clock: time.Now,
	}
}

// TryLock acquires key.
func (l *InMemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", ErrLocked
	}

	token := uuid.NewString()
	l.held[key] = heldLock{token: token, expires: now.Add(ttl)}
	return token, nil
}

// Unlock releases key.
func (l *InMemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
	return nil
}

// RedisLocker is a Locker using SET NX with a compare-and-delete unlock.
type RedisLocker struct {
	cli *redis.Client
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(cli *redis.Client) *RedisLocker {
	return &RedisLocker{cli: cli}
}

// TryLock acquires key, retrying briefly before giving up.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < 5; i++ {
		ok, err := l.cli.SetNX(ctx, "lock:"+key, token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", ErrLocked
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{"lock:" + key}, token).Result()
	return err
}

// Ensure implementations satisfy Locker.
var (
	_ Locker = (*InMemoryLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
