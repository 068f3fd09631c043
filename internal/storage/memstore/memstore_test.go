package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/segment"
)

func newTestPartition(t *testing.T, segCfg segment.Config) (*partition.Partition, *Store) {
	t.Helper()
	store := New()
	factory := func(startOffset uint64) *segment.Segment {
		return segment.Create(1, 1, 1, startOffset, "log", "index", "timeindex", segCfg, store)
	}
	p := partition.New(1, 1, 1, factory, store)
	return p, store
}

func plainMessages(n int) []message.Message {
	out := make([]message.Message, n)
	for i := range out {
		out[i] = message.New(message.NewID(), uint64(1000+i), nil, []byte("payload"))
	}
	return out
}

func TestSaveAndLoadMessagesRoundTrip(t *testing.T) {
	p, _ := newTestPartition(t, segment.Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true})
	require.NoError(t, p.AppendMessages(plainMessages(6)))
	require.NoError(t, p.Flush())

	got, err := p.GetMessagesByOffset(0, 6)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i, m := range got {
		assert.Equal(t, uint64(i), m.Offset)
	}
}

func TestLoadNewestMessagesBySize(t *testing.T) {
	p, _ := newTestPartition(t, segment.Config{MaxSizeBytes: 1 << 20})
	require.NoError(t, p.AppendMessages(plainMessages(4)))
	require.NoError(t, p.Flush())

	seg := p.Segments()[0]
	newest, err := seg.GetNewestMessagesBySize(1)
	require.NoError(t, err)
	require.NotEmpty(t, newest)
	assert.Equal(t, uint64(3), newest[len(newest)-1].Offset)
}

func TestConsumerOffsetPersistenceIsolatesKinds(t *testing.T) {
	store := New()
	individual := partition.ConsumerOffset{Kind: partition.KindConsumer, ConsumerID: 1, Offset: 5, StreamID: 1, TopicID: 1, PartitionID: 1}
	group := partition.ConsumerOffset{Kind: partition.KindConsumerGroup, ConsumerID: 1, Offset: 9, StreamID: 1, TopicID: 1, PartitionID: 1}
	require.NoError(t, store.SaveConsumerOffset(individual))
	require.NoError(t, store.SaveConsumerOffset(group))

	out, err := store.LoadConsumerOffsets(partition.KindConsumer, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(5), out[0].Offset)

	groupOut, err := store.LoadConsumerOffsets(partition.KindConsumerGroup, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, groupOut, 1)
	assert.Equal(t, uint64(9), groupOut[0].Offset)
}

func TestLoadConsumerOffsetsEmptyWhenAbsent(t *testing.T) {
	store := New()
	out, err := store.LoadConsumerOffsets(partition.KindConsumer, 1, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
}
