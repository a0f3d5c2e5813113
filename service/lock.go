package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker is an advisory lock handle callers may hand to the sweeper to
// reject overlapping runs. The engine still assumes single-writer
// scheduling; the lock only turns a misconfigured scheduler into a clean
// refusal instead of a double sweep.
type Locker interface {
	// Acquire returns true when the lock was taken.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this holder still owns it.
	Release(ctx context.Context) error
}

// releaseScript deletes the lock key only when it still holds our token,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with a SET NX lease in Redis.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
	logger *zap.SugaredLogger
}

// NewRedisLocker creates a Redis-backed advisory lock. The TTL bounds how
// long a crashed run can block the next one.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, logger *zap.SugaredLogger) *RedisLocker {
	if key == "" {
		key = "groupage:sweep:lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.New().String(),
		logger: logger,
	}
}

// Acquire takes the lease if nobody holds it.
func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		l.logger.Warnw("Sweep lock already held", "key", l.key)
	}
	return ok, nil
}

// Release frees the lease if we still own it.
func (l *RedisLocker) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
