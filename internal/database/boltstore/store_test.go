package boltstore

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(Options{Path: filepath.Join(t.TempDir(), "windows.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "windows.db")

	store, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, path)
}

func TestWindowStoreConsume(t *testing.T) {
	windows := openTestStore(t).WindowStore()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := windows.Consume("angler-1|report", 3, time.Hour, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := windows.Consume("angler-1|report", 3, time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, now.Add(time.Hour), res.ResetAt.UTC())

	t.Run("keys are independent", func(t *testing.T) {
		res, err := windows.Consume("angler-2|report", 3, time.Hour, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("elapsed window starts fresh", func(t *testing.T) {
		later := now.Add(2 * time.Hour)
		res, err := windows.Consume("angler-1|report", 3, time.Hour, later)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
		assert.Equal(t, later.Add(time.Hour), res.ResetAt.UTC())
	})
}

// Bolt's single-writer Update transaction is what makes check-and-consume
// atomic; this hammers it with concurrent consumers to make sure no more
// than limit attempts pass.
func TestWindowStoreConsumeConcurrent(t *testing.T) {
	windows := openTestStore(t).WindowStore()
	now := time.Now()
	const limit = 8
	const attempts = 40

	var wg sync.WaitGroup
	allowed := make([]bool, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := windows.Consume("angler-1|comment", limit, time.Hour, now)
			allowed[i] = res.Allowed
			errs[i] = err
		}(i)
	}
	wg.Wait()

	passed := 0
	for i := range allowed {
		require.NoError(t, errs[i])
		if allowed[i] {
			passed++
		}
	}
	assert.Equal(t, limit, passed)
}

func TestWindowStoreSweep(t *testing.T) {
	windows := openTestStore(t).WindowStore()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	_, err := windows.Consume("short|report", 5, time.Minute, now)
	require.NoError(t, err)
	_, err = windows.Consume("long|report", 5, time.Hour, now)
	require.NoError(t, err)

	evicted, err := windows.Sweep(now.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	// The surviving window still counts prior attempts.
	res, err := windows.Consume("long|report", 5, time.Hour, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
}

func TestDedupeStoreFirstSeen(t *testing.T) {
	dedupe := openTestStore(t).DedupeStore()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	const key = "apply|admin-1|angler-1|warning|spam"

	first, err := dedupe.FirstSeen(key, 10*time.Second, now)
	require.NoError(t, err)
	assert.True(t, first)

	t.Run("repeat inside the window", func(t *testing.T) {
		first, err := dedupe.FirstSeen(key, 10*time.Second, now.Add(5*time.Second))
		require.NoError(t, err)
		assert.False(t, first)
	})

	t.Run("repeat after expiry", func(t *testing.T) {
		first, err := dedupe.FirstSeen(key, 10*time.Second, now.Add(15*time.Second))
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("distinct keys never collide", func(t *testing.T) {
		first, err := dedupe.FirstSeen("lift|admin-1|angler-1||appeal", 10*time.Second, now)
		require.NoError(t, err)
		assert.True(t, first)
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.db")
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	store, err := Open(Options{Path: path})
	require.NoError(t, err)
	_, err = store.WindowStore().Consume("angler-1|report", 2, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Rate-limit state is durable across a restart.
	store, err = Open(Options{Path: path})
	require.NoError(t, err)
	defer store.Close()

	res, err := store.WindowStore().Consume("angler-1|report", 2, time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}
