// Package lock provides a named advisory lock on Redis. The raffle cron's
// close->match->draw sequence is not safely interleavable, so the whole
// operation runs under one of these.
package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AdvisoryLock is a cooperative mutual-exclusion guard keyed by an
// operation name. It is advisory: only cooperating callers are excluded.
type AdvisoryLock struct {
	redis *redis.Client
	name  string
	ttl   time.Duration
	owner string
}

// New creates a lock for the named operation. The TTL bounds how long a
// crashed holder can block other invocations.
func New(rdb *redis.Client, name string, ttl time.Duration) *AdvisoryLock {
	return &AdvisoryLock{redis: rdb, name: "lock:" + name, ttl: ttl}
}

// TryAcquire attempts to take the lock without blocking. Returns false if
// another invocation holds it.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, l.name, owner, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// releaseScript deletes the key only if this invocation still owns it, so
// a lock that expired and was re-acquired elsewhere is never released by
// the stale holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release frees the lock if still held by this invocation.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	err := releaseScript.Run(ctx, l.redis, []string{l.name}, l.owner).Err()
	if err == redis.Nil {
		err = nil
	}
	l.owner = ""
	return err
}
