package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord() interfaces.StorageRecord {
	return interfaces.StorageRecord{
		IV:           "000102030405060708090a0b",
		Ciphertext:   "deadbeefcafe",
		ExpiresAfter: time.Now().Add(time.Hour).Unix(),
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	record := testRecord()
	require.NoError(t, store.Put(ctx, "somekey", record, time.Hour))

	got, err := store.Get(ctx, "somekey")
	require.NoError(t, err)
	require.Equal(t, record, got)

	_, err = store.Get(ctx, "otherkey")
	require.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestMemoryStoreTTLFloor(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	testCases := []struct {
		name string
		ttl  time.Duration
	}{
		{name: "Zero", ttl: 0},
		{name: "Below floor", ttl: 30 * time.Second},
		{name: "Exactly the floor", ttl: 60 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Put(ctx, "somekey", testRecord(), tc.ttl)
			require.ErrorIs(t, err, interfaces.ErrValidation)

			// Rejected before storage is touched.
			_, err = store.Get(ctx, "somekey")
			require.ErrorIs(t, err, interfaces.ErrRecordNotFound)
		})
	}

	require.NoError(t, store.Put(ctx, "somekey", testRecord(), 61*time.Second))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "somekey", testRecord(), 2*time.Minute))

	_, err := store.Get(ctx, "somekey")
	require.NoError(t, err)

	// Advance past the TTL; the record expires lazily.
	store.now = func() time.Time { return now.Add(3 * time.Minute) }
	_, err = store.Get(ctx, "somekey")
	require.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key-a", testRecord(), time.Hour))
	require.NoError(t, store.Put(ctx, "key-b", testRecord(), time.Hour))
	_, err := store.Increment(ctx, interfaces.CreatedCounter)
	require.NoError(t, err)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"key-a", "key-b", interfaces.CreatedCounter}, keys)
}

func TestMemoryStoreCounters(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	value, err := store.GetCounter(ctx, interfaces.CreatedCounter)
	require.NoError(t, err)
	require.Zero(t, value)

	for i := int64(1); i <= 3; i++ {
		value, err = store.Increment(ctx, interfaces.CreatedCounter)
		require.NoError(t, err)
		require.Equal(t, i, value)
	}

	value, err = store.GetCounter(ctx, interfaces.CreatedCounter)
	require.NoError(t, err)
	require.Equal(t, int64(3), value)
}

// The memory store serializes increments, so N concurrent increments must
// count exactly N with no lost updates.
func TestMemoryStoreCounterConcurrency(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, interfaces.RetrievedCounter)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, err := store.GetCounter(ctx, interfaces.RetrievedCounter)
	require.NoError(t, err)
	require.Equal(t, int64(n), value)
}
