package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Hit(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	w, err := store.Hit(ctx, "a", now, time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, w.Admitted)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, now, w.Oldest)

	w, err = store.Hit(ctx, "a", now.Add(time.Second), time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, w.Admitted)
	assert.Equal(t, 2, w.Count)
	assert.Equal(t, now, w.Oldest)

	w, err = store.Hit(ctx, "a", now.Add(2*time.Second), time.Minute, 2)
	require.NoError(t, err)
	assert.False(t, w.Admitted)
	assert.Equal(t, 2, w.Count)
}

func TestMemoryStore_OutOfOrderHits(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_, err := store.Hit(ctx, "a", now, time.Minute, 5)
	require.NoError(t, err)
	w, err := store.Hit(ctx, "a", now.Add(-time.Millisecond), time.Minute, 5)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-time.Millisecond), w.Oldest)
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Hit(ctx, "a", time.Now(), time.Minute, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Reset(ctx, "a"), context.Canceled)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_, err := store.Hit(ctx, "old", now.Add(-2*time.Minute), time.Minute, 10)
	require.NoError(t, err)
	_, err = store.Hit(ctx, "fresh", now, time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	store.cleanup(now)

	assert.Equal(t, 1, store.Len())

	// A swept client starts over.
	w, err := store.Hit(ctx, "old", now, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
}

func TestMemoryStore_SweeperRuns(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()

	_, err := store.Hit(context.Background(), "a", time.Now().Add(-time.Hour), time.Millisecond, 1)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
