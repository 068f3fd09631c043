package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/segment"
)

func newTestStore(t *testing.T) *PartitionStore {
	t.Helper()
	store, err := Open(t.TempDir(), 1, 1, 1, zap.NewNop())
	require.NoError(t, err)
	return store
}

func newTestPartition(t *testing.T, segCfg segment.Config) (*partition.Partition, *PartitionStore) {
	t.Helper()
	store := newTestStore(t)
	factory := store.NewSegmentFactory(1, 1, 1, segCfg)
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

func TestOpenCreatesDirectoryLayout(t *testing.T) {
	store := newTestStore(t)
	assert.DirExists(t, store.dir)
}

func TestAppendAndPersistThenReload(t *testing.T) {
	p, _ := newTestPartition(t, segment.Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true, TimeIndexesEnabled: true})
	require.NoError(t, p.AppendMessages(plainMessages(10)))
	require.NoError(t, p.Flush())

	got, err := p.GetMessagesByOffset(0, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, m := range got {
		assert.Equal(t, uint64(i), m.Offset)
	}
}

func TestLoadMessagesFromDiskAfterRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, 1, 1, 1, zap.NewNop())
	require.NoError(t, err)
	segCfg := segment.Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true}
	factory := store.NewSegmentFactory(1, 1, 1, segCfg)
	p := partition.New(1, 1, 1, factory, store)
	require.NoError(t, p.AppendMessages(plainMessages(5)))
	require.NoError(t, p.Flush())

	// Simulate a restart: open a fresh store against the same directory
	// and a fresh segment pointed at the same on-disk paths.
	store2, err := Open(dir, 1, 1, 1, zap.NewNop())
	require.NoError(t, err)
	seg := segment.Create(1, 1, 1, 0, p.Segments()[0].LogPath, p.Segments()[0].IndexPath, p.Segments()[0].TimeIndexPath, segCfg, store2)

	indexRange, err := store2.LoadIndexRange(seg, 0, 0, 5)
	require.NoError(t, err)
	require.NotNil(t, indexRange)

	messages, err := store2.LoadMessages(seg, *indexRange)
	require.NoError(t, err)
	require.Len(t, messages, 5)
}

// TestLoadSegmentsRebuildsPartitionAfterRestart persists two segments
// (one rollover), reopens the store against the same directory, and
// checks the recovered partition serves every message with the right
// current_offset — the restart must be indistinguishable from never
// having restarted.
func TestLoadSegmentsRebuildsPartitionAfterRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, 1, 1, 1, zap.NewNop())
	require.NoError(t, err)
	segCfg := segment.Config{MaxSizeBytes: 1024, IndexesEnabled: true, TimeIndexesEnabled: true}
	p := partition.New(1, 1, 1, store.NewSegmentFactory(1, 1, 1, segCfg), store)

	const overheadWithoutPayload = 16 + 41 + 4
	sized := func(ts uint64) message.Message {
		return message.New(message.NewID(), ts, nil, make([]byte, 400-overheadWithoutPayload))
	}
	require.NoError(t, p.AppendMessages([]message.Message{sized(1000)}))
	require.NoError(t, p.AppendMessages([]message.Message{sized(1001)}))
	require.NoError(t, p.AppendMessages([]message.Message{sized(1002)}))
	require.NoError(t, p.Flush())
	require.Len(t, p.Segments(), 2)

	store2, err := Open(dir, 1, 1, 1, zap.NewNop())
	require.NoError(t, err)
	segments, err := store2.LoadSegments(1, 1, 1, segCfg)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.True(t, segments[0].IsClosed)
	assert.Equal(t, uint64(1), segments[0].EndOffset)
	assert.False(t, segments[1].IsClosed)
	assert.Equal(t, uint64(2), segments[1].StartOffset)

	reloaded := partition.Load(1, 1, 1, segments, store2.NewSegmentFactory(1, 1, 1, segCfg), store2)
	assert.Equal(t, uint64(2), reloaded.CurrentOffsetValue().Value())

	got, err := reloaded.GetMessagesByOffset(0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, uint64(i), m.Offset)
	}

	// Appends continue where the previous process stopped.
	require.NoError(t, reloaded.AppendMessages([]message.Message{sized(1003)}))
	assert.Equal(t, uint64(3), reloaded.CurrentOffsetValue().Value())
}

func TestLoadSegmentsEmptyDirectoryYieldsNone(t *testing.T) {
	store := newTestStore(t)
	segments, err := store.LoadSegments(1, 1, 1, segment.Config{MaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestConsumerOffsetPersistenceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	offset := partition.ConsumerOffset{
		Kind:        partition.KindConsumer,
		ConsumerID:  3,
		Offset:      42,
		StreamID:    1,
		TopicID:     1,
		PartitionID: 1,
	}
	require.NoError(t, store.SaveConsumerOffset(offset))

	out, err := store.LoadConsumerOffsets(partition.KindConsumer, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(42), out[0].Offset)
	assert.Equal(t, uint32(3), out[0].ConsumerID)

	group, err := store.LoadConsumerOffsets(partition.KindConsumerGroup, 1, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, group)
}

func TestLoadConsumerOffsetsEmptyWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	out, err := store.LoadConsumerOffsets(partition.KindConsumer, 1, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSegmentRolloverPersistsAcrossFiles(t *testing.T) {
	p, _ := newTestPartition(t, segment.Config{MaxSizeBytes: 1024, IndexesEnabled: true})

	const overheadWithoutPayload = 16 + 41 + 4
	sized := func(ts uint64) message.Message {
		return message.New(message.NewID(), ts, nil, make([]byte, 400-overheadWithoutPayload))
	}

	require.NoError(t, p.AppendMessages([]message.Message{sized(1000)}))
	require.NoError(t, p.AppendMessages([]message.Message{sized(1001)}))
	require.NoError(t, p.AppendMessages([]message.Message{sized(1002)}))
	require.NoError(t, p.Flush())

	segments := p.Segments()
	require.Len(t, segments, 2)
	assert.True(t, segments[0].IsClosed)
	assert.FileExists(t, segments[0].LogPath)
	assert.FileExists(t, segments[1].LogPath)
}
