package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneedge/gateway/interfaces"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMemoryStore_MutateCreatesAndPersists(t *testing.T) {
	store := NewMemoryStore()

	err := store.Mutate(context.Background(), "press-01", func(dev *interfaces.Device, found bool) bool {
		require.False(t, found)
		require.Equal(t, "press-01", dev.DeviceID)
		dev.Name = "Press 01"
		dev.Status = interfaces.StatusInactive
		return true
	})
	require.NoError(t, err)

	dev, err := store.Get(context.Background(), "press-01")
	require.NoError(t, err)
	assert.Equal(t, "Press 01", dev.Name)
}

func TestMemoryStore_MutateDeclinedPersistRollsBack(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "press-01", Name: "Press 01"})

	err := store.Mutate(context.Background(), "press-01", func(dev *interfaces.Device, found bool) bool {
		require.True(t, found)
		dev.Name = "mutated"
		dev.FailedAuthAttempts = 99
		return false
	})
	require.NoError(t, err)

	dev, err := store.Get(context.Background(), "press-01")
	require.NoError(t, err)
	assert.Equal(t, "Press 01", dev.Name)
	assert.Zero(t, dev.FailedAuthAttempts)
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "press-01", Name: "Press 01"})

	dev, err := store.Get(context.Background(), "press-01")
	require.NoError(t, err)
	dev.Name = "tampered"

	fresh, err := store.Get(context.Background(), "press-01")
	require.NoError(t, err)
	assert.Equal(t, "Press 01", fresh.Name)
}

func TestMemoryStore_ConcurrentMutationsSerialize(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "press-01"})

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Mutate(context.Background(), "press-01", func(dev *interfaces.Device, found bool) bool {
				dev.FailedAuthAttempts++
				return true
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	dev, err := store.Get(context.Background(), "press-01")
	require.NoError(t, err)
	assert.Equal(t, uint(workers), dev.FailedAuthAttempts)
}

func TestMemoryStore_CancelledContextLeavesRecordUnchanged(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "press-01", Name: "Press 01"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Mutate(ctx, "press-01", func(dev *interfaces.Device, found bool) bool {
		called = true
		return true
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "press-01"})

	require.NoError(t, store.Delete(context.Background(), "press-01"))
	_, err := store.Get(context.Background(), "press-01")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.ErrorIs(t, store.Delete(context.Background(), "press-01"), interfaces.ErrNotFound)
}

func TestMemoryStore_ListOrderedByName(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, &interfaces.Device{DeviceID: "b", Name: "beta"})
	seed(t, store, &interfaces.Device{DeviceID: "a", Name: "alpha"})

	devices, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "alpha", devices[0].Name)
	assert.Equal(t, "beta", devices[1].Name)
}

func seed(t *testing.T, store *MemoryStore, dev *interfaces.Device) {
	t.Helper()
	err := store.Mutate(context.Background(), dev.DeviceID, func(stored *interfaces.Device, found bool) bool {
		*stored = *dev
		return true
	})
	require.NoError(t, err)
}
