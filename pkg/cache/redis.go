// pkg/cache/redis.go
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis implements Cache and Locker on a shared Redis instance.
type Redis struct {
	rdb *redis.Client

	mu     sync.Mutex
	owners map[string]string // lock key -> owner token for safe release
}

// lockTTL bounds how long a crashed holder can wedge a lock scope.
const lockTTL = 30 * time.Second

// lockPoll is the retry interval while waiting for a contended lock.
const lockPoll = 50 * time.Millisecond

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, owners: map[string]string{}}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// releaseScript deletes the lock only if the caller still owns it, so a
// holder that outlived lockTTL cannot release a lock re-acquired by another.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

func (r *Redis) TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return false, err
		}
		if ok {
			r.mu.Lock()
			r.owners[key] = token
			r.mu.Unlock()
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

func (r *Redis) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.owners[key]
	delete(r.owners, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, r.rdb, []string{key}, token).Err()
}
