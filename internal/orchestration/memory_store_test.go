package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/pkg/errors"
)

func TestMemoryStoreCreateConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, NewInstance("1")))

	err := store.Create(ctx, NewInstance("1"))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreUpdateBumpsVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	inst := NewInstance("1")
	require.NoError(t, store.Create(ctx, inst))

	inst.ReceivedItems[ItemOrderHeaderDetails] = "loc1"
	require.NoError(t, store.Update(ctx, inst))
	assert.Equal(t, int64(2), inst.Version)

	stored, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, "loc1", stored.ReceivedItems[ItemOrderHeaderDetails])
}

func TestMemoryStoreUpdateVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, NewInstance("1")))

	first, err := store.Get(ctx, "1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "1")
	require.NoError(t, err)

	first.ReceivedItems[ItemOrderHeaderDetails] = "locA"
	require.NoError(t, store.Update(ctx, first))

	second.ReceivedItems[ItemOrderLineItems] = "locB"
	err = store.Update(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	// The losing write left no trace.
	stored, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.NotContains(t, stored.ReceivedItems, ItemOrderLineItems)
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	inst := NewInstance("1")
	require.NoError(t, store.Create(ctx, inst))

	// Mutating the caller's copy must not leak into the store.
	inst.ReceivedItems[ItemOrderHeaderDetails] = "dirty"

	stored, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, stored.ReceivedItems)
}

func TestMemoryStoreListByPhase(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	awaiting := NewInstance("1")
	require.NoError(t, store.Create(ctx, awaiting))

	composing := NewInstance("2")
	composing.Phase = PhaseComposing
	require.NoError(t, store.Create(ctx, composing))

	got, err := store.ListByPhase(ctx, PhaseComposing)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].BatchID)
}

func TestMemoryStoreListStale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := NewInstance("old")
	old.LastUpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Create(ctx, old))

	fresh := NewInstance("fresh")
	require.NoError(t, store.Create(ctx, fresh))

	stale, err := store.ListStale(ctx, PhaseAwaitingInputs, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].BatchID)
}
