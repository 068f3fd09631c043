package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/cache"
	"github.com/flowforge/streambroker/internal/message"
)

func batchOf(n int, payloadSize int) []message.Message {
	out := make([]message.Message, n)
	for i := range out {
		out[i] = message.New(message.NewID(), uint64(1000+i), nil, make([]byte, payloadSize))
		out[i].Offset = uint64(i)
	}
	return out
}

func TestGetMissesOnUnknownKey(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	_, ok := c.Get(cache.Key{StreamID: 1, TopicID: 1, PartitionID: 1, BaseOffset: 0})
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	key := cache.Key{StreamID: 1, TopicID: 2, PartitionID: 3, BaseOffset: 100}
	messages := batchOf(4, 16)

	c.Put(key, messages)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Len(t, got, 4)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestPutEvictsLeastRecentlyUsedUnderByteBudget(t *testing.T) {
	entrySize := messageSetSize(t, batchOf(1, 100))
	c := cache.NewLRU(entrySize * 2)

	keyA := cache.Key{PartitionID: 1, BaseOffset: 0}
	keyB := cache.Key{PartitionID: 1, BaseOffset: 1}
	keyC := cache.Key{PartitionID: 1, BaseOffset: 2}

	c.Put(keyA, batchOf(1, 100))
	c.Put(keyB, batchOf(1, 100))
	// Touch A so B becomes the least recently used entry.
	_, _ = c.Get(keyA)
	c.Put(keyC, batchOf(1, 100))

	_, okA := c.Get(keyA)
	_, okB := c.Get(keyB)
	_, okC := c.Get(keyC)
	assert.True(t, okA)
	assert.False(t, okB, "B should have been evicted as the least recently used entry")
	assert.True(t, okC)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	key := cache.Key{PartitionID: 1, BaseOffset: 5}
	c.Put(key, batchOf(2, 10))

	c.Invalidate(key)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestClearResetsStateAndCounters(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	key := cache.Key{PartitionID: 1, BaseOffset: 0}
	c.Put(key, batchOf(1, 10))
	_, _ = c.Get(key)

	c.Clear()
	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func messageSetSize(t *testing.T, messages []message.Message) int64 {
	t.Helper()
	var total int64
	for _, m := range messages {
		total += int64(m.SizeBytes())
	}
	return total
}
