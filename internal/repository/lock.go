package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock is held by another client")

const (
	lockTTL     = 10 * time.Second
	lockRetry   = 50 * time.Millisecond
	lockRetries = 100
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker serializes instructions touching the same ledger record across
// client processes.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock blocks until name is free or the retries run out. The returned
// release must be called once the protected update is stored.
func (that *Locker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	key := "lock:" + name

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}
	token := hex.EncodeToString(raw)

	acquire := func() error {
		ok, err := that.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to set lock: %w", err))
		}
		if !ok {
			return ErrLockNotAcquired
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(lockRetry), lockRetries), ctx)
	if err := backoff.Retry(acquire, policy); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, that.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}

	return release, nil
}
