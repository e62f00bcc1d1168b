package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

var ErrRunInProgress = errors.New("a reminder run is already in progress")

// Locker guards a batch run. Acquire returns ErrRunInProgress when another
// holder has the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// MemoryLock serialises runs inside one process.
type MemoryLock struct {
	mu sync.Mutex
}

func (l *MemoryLock) Acquire(context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, nil
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serialises runs across replicas. The TTL bounds how long a
// crashed holder blocks later runs.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		return nil
	}, nil
}
