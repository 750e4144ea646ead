package refreshlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis key every replica contends on.
const DefaultKey = "chain-efficiency:refresh"

// ErrNotHeld is returned by Release when the lock expired or was taken over.
var ErrNotHeld = errors.New("refresh lock not held")

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a single-key mutual exclusion lock shared by all replicas through Redis.
type Lock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// New connects to Redis and returns a Lock on key. The key expires after ttl
// so a crashed holder cannot block refreshes forever.
func New(redisURL, password, key string, ttl time.Duration) (*Lock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if key == "" {
		key = DefaultKey
	}
	return &Lock{rdb: rdb, key: key, ttl: ttl}, nil
}

func (l *Lock) Close() error {
	return l.rdb.Close()
}

// Acquire tries once to take the lock. ok is false when another holder has it.
// The returned token must be passed to Release.
func (l *Lock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still owns it.
func (l *Lock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Extend resets the key's TTL if token still owns it.
func (l *Lock) Extend(ctx context.Context, token string) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Keep extends the lock every third of its TTL until stop is called, ctx is
// done or the lock is lost. lost is closed in the last case.
func (l *Lock) Keep(ctx context.Context, token string) (lost <-chan struct{}, stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	lostCh := make(chan struct{})
	done := make(chan struct{})

	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := l.Extend(ctx, token)
				if errors.Is(err, ErrNotHeld) {
					close(lostCh)
					return
				}
				// A transient Redis error is retried on the next tick while the TTL still runs.
			}
		}
	}()

	return lostCh, func() {
		cancel()
		<-done
	}
}
