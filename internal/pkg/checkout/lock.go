// Package checkout serializes payment initiation per customer identity and
// keeps the in-flight cart server side. It deliberately sits in front of the
// payment flow: the lock prevents two browser tabs or a double-click from
// opening two payment sessions, it is not a correctness mechanism for the
// ledger itself.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCheckoutInProgress is the recoverable contention result: another
// checkout for the same identity is still live. Callers surface it as
// "try again shortly", never as a fatal error.
var ErrCheckoutInProgress = errors.New("checkout already in progress")

const (
	lockKeyPrefix  = "checkout:lock:"
	DefaultLockTTL = 45 * time.Second
)

// LockManager hands out short-lived per-identity checkout leases backed by
// Redis. Expiry is handled by the key TTL, so a crashed client can never
// lock an identity out for longer than the TTL.
type LockManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLockManager creates a lock manager with the given default TTL.
func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &LockManager{client: client, ttl: ttl}
}

// Acquire takes the checkout lock for an identity. It returns the holder
// token on success and ErrCheckoutInProgress when an unexpired lock exists.
// SET NX EX makes the test-and-set a single Redis command; a second Acquire
// for the same key fails while the first is live, by design.
func (m *LockManager) Acquire(ctx context.Context, identityKey string) (string, error) {
	key, err := lockKey(identityKey)
	if err != nil {
		return "", err
	}

	token := uuid.New().String()
	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return "", ErrCheckoutInProgress
	}
	return token, nil
}

// Release frees the lock if and only if token still identifies the holder.
// The compare-and-delete runs as a Lua script so a lock that expired and was
// re-acquired by someone else is never deleted by the old holder.
func (m *LockManager) Release(ctx context.Context, identityKey, token string) error {
	key, err := lockKey(identityKey)
	if err != nil {
		return err
	}

	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	if err := m.client.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release checkout lock: %w", err)
	}
	return nil
}

// Held reports whether an unexpired lock exists for the identity.
func (m *LockManager) Held(ctx context.Context, identityKey string) (bool, error) {
	key, err := lockKey(identityKey)
	if err != nil {
		return false, err
	}
	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func lockKey(identityKey string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(identityKey))
	if id == "" {
		return "", errors.New("identity key is required")
	}
	return lockKeyPrefix + id, nil
}
