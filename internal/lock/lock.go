package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"weld/internal/constants"
	"weld/pkg/errors"
)

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lock reacquired by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Manager hands out per-batch locks so only one worker advances a batch
// at a time. Locks are advisory: the store's version checks are the real
// consistency guarantee, the lock just avoids wasted conflict retries.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = constants.DefaultLockTTL
	}
	return &Manager{client: client, ttl: ttl}
}

type Lock struct {
	manager *Manager
	key     string
	token   string
}

// Acquire takes the lock for a batch. Returns a conflict error when
// another worker holds it.
func (m *Manager) Acquire(ctx context.Context, batchID string) (*Lock, error) {
	key := constants.BatchLockPrefix + batchID
	token := uuid.New().String()

	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire batch lock: %w", err)
	}
	if !ok {
		return nil, errors.ErrConflict.WithDetail("batch_id", batchID).AsRetryable()
	}

	return &Lock{manager: m, key: key, token: token}, nil
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.manager.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("failed to release batch lock: %w", err)
	}
	return nil
}

// Extend pushes the lock expiry out by the manager TTL. Used by long
// pipeline runs that outlive the initial lease.
func (l *Lock) Extend(ctx context.Context) error {
	ok, err := l.manager.client.Expire(ctx, l.key, l.manager.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend batch lock: %w", err)
	}
	if !ok {
		return errors.ErrConflict.WithDetail("key", l.key)
	}
	return nil
}
