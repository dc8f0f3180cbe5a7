// Package lock provides a Redis-backed mutual exclusion shared by every
// gateway replica.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by TryWithLock when another holder owns the key.
var ErrNotAcquired = errors.New("lock: held by another owner")

const defaultTTL = 30 * time.Second

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker hands out named leases. A lease is renewed every third of its TTL
// while the callback runs, so a slow backend submission keeps it, and a
// crashed replica loses it after one TTL.
type Locker struct {
	R            redis.Cmdable
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock runs fn under the lease, waiting for it until ctx is done.
func (l Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	return l.run(ctx, name, ttl, true, fn)
}

// TryWithLock runs fn only if the lease is free now; otherwise it returns
// ErrNotAcquired without waiting.
func (l Locker) TryWithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	return l.run(ctx, name, ttl, false, fn)
}

func (l Locker) run(ctx context.Context, name string, ttl time.Duration, wait bool, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key := l.Prefix + name
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl, wait); err != nil {
		return err
	}

	done := make(chan struct{})
	go l.renew(key, token, ttl, done)
	defer func() {
		close(done)
		_ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration, wait bool) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !wait {
			return ErrNotAcquired
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// renew extends the lease until done is closed or the lease is no longer ours.
func (l Locker) renew(key, token string, ttl time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			kept, err := renewScript.Run(context.Background(), l.R, []string{key}, token, ttl.Milliseconds()).Int()
			if err == nil && kept == 0 {
				return
			}
		}
	}
}
