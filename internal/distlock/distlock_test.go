package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func testLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "dispatch:u1:loc1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := l.Acquire(ctx, "dispatch:u1:loc1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}

	other, err := l.Acquire(ctx, "dispatch:u1:loc2")
	if err != nil {
		t.Fatalf("Acquire() other key error = %v", err)
	}
	defer other(ctx)

	if err := release(ctx); err != nil {
		t.Fatalf("release error = %v", err)
	}

	again, err := l.Acquire(ctx, "dispatch:u1:loc1")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again(ctx)
}

func TestLocalLocker(t *testing.T) {
	testLocker(t, New(nil, 0))
}

func TestRedisLocker(t *testing.T) {
	_, client := setupRedis(t)
	testLocker(t, New(client, time.Minute))
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLocker(client, time.Minute)

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Lock expires and another process takes it
	mr.FastForward(2 * time.Minute)
	if _, err := l.Acquire(ctx, "k"); err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release error = %v", err)
	}
	if !mr.Exists("lock:k") {
		t.Error("stale release must not delete the new holder's lock")
	}
}
