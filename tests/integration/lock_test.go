package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/internal/lock"
	"weld/pkg/errors"
)

func TestLockManager_AcquireAndRelease(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	manager := lock.NewManager(infra.RedisClient, 30*time.Second)
	ctx := context.Background()

	held, err := manager.Acquire(ctx, "42")
	require.NoError(t, err)

	require.NoError(t, held.Release(ctx))

	// Released lock can be taken again.
	again, err := manager.Acquire(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLockManager_SecondAcquireConflicts(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	manager := lock.NewManager(infra.RedisClient, 30*time.Second)
	ctx := context.Background()

	held, err := manager.Acquire(ctx, "42")
	require.NoError(t, err)
	defer held.Release(ctx)

	_, err = manager.Acquire(ctx, "42")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	var retryable errors.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.True(t, retryable.IsRetryable())
}

func TestLockManager_IndependentBatches(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	manager := lock.NewManager(infra.RedisClient, 30*time.Second)
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "1")
	require.NoError(t, err)
	defer first.Release(ctx)

	second, err := manager.Acquire(ctx, "2")
	require.NoError(t, err)
	defer second.Release(ctx)
}

func TestLockManager_StaleHolderCannotReleaseNewLock(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()

	shortLived := lock.NewManager(infra.RedisClient, 100*time.Millisecond)
	stale, err := shortLived.Acquire(ctx, "42")
	require.NoError(t, err)

	// Let the first lease expire, then have another worker take the lock.
	time.Sleep(200 * time.Millisecond)

	manager := lock.NewManager(infra.RedisClient, 30*time.Second)
	current, err := manager.Acquire(ctx, "42")
	require.NoError(t, err)
	defer current.Release(ctx)

	// The stale holder's release is a no-op against the new token.
	require.NoError(t, stale.Release(ctx))

	_, err = manager.Acquire(ctx, "42")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "current lock should still be held")
}

func TestLockManager_Extend(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	manager := lock.NewManager(infra.RedisClient, 500*time.Millisecond)
	ctx := context.Background()

	held, err := manager.Acquire(ctx, "42")
	require.NoError(t, err)
	defer held.Release(ctx)

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, held.Extend(ctx))

	// Past the original expiry but inside the extended lease.
	time.Sleep(300 * time.Millisecond)
	_, err = manager.Acquire(ctx, "42")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}
