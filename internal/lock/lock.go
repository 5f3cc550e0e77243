// Package lock provides a Redis mutex so two jobsync processes never run the
// same pipeline at once.
package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "jobsync:lock:"

// ErrHeld is returned by Acquire when another holder owns the key.
var ErrHeld = errors.New("lock is held by another process")

// Delete the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Locker hands out TTL-bounded locks. A nil *redis.Client disables locking:
// every Acquire succeeds with a no-op Lock.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a Locker whose locks expire after ttl if never released.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Lock is one acquired key.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire takes the lock for name or returns ErrHeld.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	if l == nil || l.rdb == nil {
		return &Lock{}, nil
	}
	key := keyPrefix + name
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire %s", key)
	}
	if !ok {
		return nil, errors.Wrapf(ErrHeld, "acquire %s", key)
	}
	return &Lock{rdb: l.rdb, key: key, token: token}, nil
}

// Release drops the lock if it is still ours. It reports false when the key
// had already expired or been taken over.
func (k *Lock) Release(ctx context.Context) (bool, error) {
	if k == nil || k.rdb == nil {
		return true, nil
	}
	n, err := releaseScript.Run(ctx, k.rdb, []string{k.key}, k.token).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "release %s", k.key)
	}
	return n == 1, nil
}
