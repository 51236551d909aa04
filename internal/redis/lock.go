package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("run lock not acquired")
)

// Locker serializes worker runs across replicas, so a scheduled sweep such
// as the reminder scan executes on one instance at a time.
type Locker interface {
	WithRunLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type redisRunLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLocker creates a locker backed by a per run-name Redis key.
func NewRedisRunLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisRunLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisRunLocker) WithRunLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:run:%s", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisRunLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
