package refreshlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLock(t *testing.T, ttl time.Duration) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	l, err := New("redis://"+mr.Addr(), "", "", ttl)
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	return l, mr
}

func TestAcquireRelease(t *testing.T) {
	l, mr := setupTestLock(t, time.Minute)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, err := l.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if got, _ := mr.Get(DefaultKey); got != token {
		t.Errorf("stored token = %q, want %q", got, token)
	}
	if ttl := mr.TTL(DefaultKey); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	if err := l.Release(ctx, token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists(DefaultKey) {
		t.Error("key should be deleted after Release")
	}
}

func TestAcquireContended(t *testing.T) {
	l, mr := setupTestLock(t, time.Minute)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	if _, ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("first Acquire should succeed")
	}
	token, ok, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok || token != "" {
		t.Errorf("second Acquire = %q, %v, want \"\", false", token, ok)
	}
}

func TestReleaseForeignToken(t *testing.T) {
	l, mr := setupTestLock(t, time.Minute)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	if _, ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("Acquire should succeed")
	}
	if err := l.Release(ctx, "someone-else"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Release(foreign) = %v, want ErrNotHeld", err)
	}
	if !mr.Exists(DefaultKey) {
		t.Error("foreign Release must not delete the key")
	}
}

func TestLockExpires(t *testing.T) {
	l, mr := setupTestLock(t, 2*time.Second)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire should succeed")
	}
	mr.FastForward(3 * time.Second)

	if _, ok, _ := l.Acquire(ctx); !ok {
		t.Error("Acquire should succeed after expiry")
	}
	if err := l.Release(ctx, token); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Release(stale) = %v, want ErrNotHeld", err)
	}
}

func TestExtendResetsTTL(t *testing.T) {
	l, mr := setupTestLock(t, 2*time.Minute)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire should succeed")
	}

	// A refresh outliving the TTL keeps the key while it extends.
	for i := 0; i < 5; i++ {
		mr.FastForward(90 * time.Second)
		if err := l.Extend(ctx, token); err != nil {
			t.Fatalf("Extend #%d: %v", i+1, err)
		}
		if ttl := mr.TTL(DefaultKey); ttl != 2*time.Minute {
			t.Fatalf("TTL after Extend = %v, want 2m", ttl)
		}
	}

	if _, ok, _ := l.Acquire(ctx); ok {
		t.Error("second holder acquired a lock that is still being extended")
	}
	if err := l.Release(ctx, token); err != nil {
		t.Errorf("Release after extends: %v", err)
	}
}

func TestExtendLostLock(t *testing.T) {
	l, mr := setupTestLock(t, 2*time.Minute)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire should succeed")
	}
	if err := l.Extend(ctx, "someone-else"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Extend(foreign) = %v, want ErrNotHeld", err)
	}

	mr.FastForward(3 * time.Minute)
	if err := l.Extend(ctx, token); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Extend(expired) = %v, want ErrNotHeld", err)
	}
	if mr.Exists(DefaultKey) {
		t.Error("Extend must not recreate an expired key")
	}
}

func TestKeepRenews(t *testing.T) {
	l, mr := setupTestLock(t, 300*time.Millisecond)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire should succeed")
	}
	mr.FastForward(200 * time.Millisecond)

	lost, stop := l.Keep(ctx, token)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL(DefaultKey) != 300*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("TTL = %v, Keep did not renew", mr.TTL(DefaultKey))
		}
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	select {
	case <-lost:
		t.Error("lost closed while the lock was held")
	default:
	}

	mr.FastForward(time.Second)
	if mr.Exists(DefaultKey) {
		t.Error("key should expire once Keep is stopped")
	}
}

func TestKeepReportsLoss(t *testing.T) {
	l, mr := setupTestLock(t, 300*time.Millisecond)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	token, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire should succeed")
	}
	lost, stop := l.Keep(ctx, token)
	defer stop()

	mr.Set(DefaultKey, "other-replica")

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("lost was not closed after takeover")
	}
	if got, _ := mr.Get(DefaultKey); got != "other-replica" {
		t.Errorf("key = %q, takeover must be left alone", got)
	}
}

func TestAcquireRedisDown(t *testing.T) {
	l, mr := setupTestLock(t, time.Minute)
	defer l.Close()

	mr.Close()

	if _, ok, err := l.Acquire(context.Background()); err == nil || ok {
		t.Errorf("Acquire with Redis down = %v, %v, want error", ok, err)
	}
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not a url", "", "", time.Minute); err == nil {
		t.Error("expected error for bad url")
	}
}
