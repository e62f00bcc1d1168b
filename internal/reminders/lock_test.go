package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tariel-x/wellpush/internal/dispatch"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock(t *testing.T) {
	_, client := newRedisClient(t)
	ctx := context.Background()

	first := NewRedisLock(client, "wellpush:test-lock", time.Minute)
	second := NewRedisLock(client, "wellpush:test-lock", time.Minute)

	release, err := first.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := second.Acquire(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	releaseSecond, err := second.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	// A stale release must not drop someone else's lock.
	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := first.Acquire(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("stale release removed the current holder's lock")
	}
	if err := releaseSecond(ctx); err != nil {
		t.Fatalf("release second: %v", err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := context.Background()
	lock := NewRedisLock(client, "wellpush:test-lock", time.Minute)

	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ttl := mr.TTL("wellpush:test-lock"); ttl != time.Minute {
		t.Fatalf("unexpected lock ttl %s", ttl)
	}

	// The holder crashed without releasing.
	mr.FastForward(time.Minute + time.Second)
	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestRedisLockUnreachable(t *testing.T) {
	mr, client := newRedisClient(t)
	mr.Close()

	lock := NewRedisLock(client, "wellpush:test-lock", time.Minute)
	_, err := lock.Acquire(context.Background())
	if err == nil || errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected a backend error, got %v", err)
	}

	finder := staticFinder{candidates: []Candidate{{UserID: "ok", Email: "ok@example.com"}}}
	sender := scriptedSender{
		"ok": func() (*dispatch.Report, error) {
			return &dispatch.Report{Success: true, DevicesNotified: 1}, nil
		},
	}
	summary, err := NewBatchRunner(finder, sender, lock, discardLogger()).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run without redis: %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestMemoryLock(t *testing.T) {
	var lock MemoryLock
	release, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	release(context.Background())
	if _, err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
