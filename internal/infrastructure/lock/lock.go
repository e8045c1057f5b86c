// Package lock provides short-lived named locks for background jobs that must
// run on one worker at a time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out locks by key.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker shares locks across processes through redis.
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker creates a locker on top of a redis client.
func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), prefix: prefix}
}

// Obtain implements Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lk, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lk, nil
}

// LocalLocker is an in-process locker for single-worker deployments and tests.
// A lock expires after its ttl even if never released.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), clock: time.Now}
}

// Obtain implements Locker.
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, ErrNotObtained
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return &localLock{locker: l, key: key, expires: expires}, nil
}

type localLock struct {
	locker  *LocalLocker
	key     string
	expires time.Time
}

func (lk *localLock) Release(context.Context) error {
	lk.locker.mu.Lock()
	defer lk.locker.mu.Unlock()
	// A newer holder may own the key after expiry.
	if lk.locker.held[lk.key].Equal(lk.expires) {
		delete(lk.locker.held, lk.key)
	}
	return nil
}
