package segment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/batching"
	"github.com/flowforge/streambroker/internal/message"
)

// fakeStore is a minimal in-memory Storage used only by this package's
// tests, avoiding a dependency on the real filestore/memstore
// implementations (which both import this package).
type fakeStore struct {
	mu   sync.Mutex
	logs map[*Segment][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{logs: make(map[*Segment][]byte)}
}

func (f *fakeStore) SaveMessages(seg *Segment, batches []batching.MessagesBatch) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf []byte
	for _, b := range batches {
		buf = b.AppendBytes(buf)
	}
	f.logs[seg] = append(f.logs[seg], buf...)
	return uint32(len(buf)), nil
}

func (f *fakeStore) SaveIndex(seg *Segment, currentPosition uint32, batches []batching.MessagesBatch) error {
	return nil
}

func (f *fakeStore) SaveTimeIndex(seg *Segment, batches []batching.MessagesBatch) error {
	return nil
}

func (f *fakeStore) decodeRange(seg *Segment, start, end uint32) ([]message.Message, error) {
	f.mu.Lock()
	buf := f.logs[seg]
	f.mu.Unlock()
	if end > uint32(len(buf)) {
		end = uint32(len(buf))
	}
	if start >= end {
		return nil, nil
	}
	out := make([]message.Message, 0)
	pos := start
	for pos < end {
		batch, n, err := batching.FromBytes(buf[pos:])
		if err != nil {
			return nil, err
		}
		msgs, err := batch.Unpack()
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
		pos += uint32(n)
	}
	return out, nil
}

func (f *fakeStore) LoadMessages(seg *Segment, indexRange IndexRange) ([]message.Message, error) {
	return f.decodeRange(seg, indexRange.Start.Position, indexRange.End.Position)
}

func (f *fakeStore) LoadNewestMessagesBySize(seg *Segment, sizeBytes uint64) ([]message.Message, error) {
	all, err := f.decodeRange(seg, 0, 1<<31)
	if err != nil {
		return nil, err
	}
	var total uint64
	cut := len(all)
	for i := len(all) - 1; i >= 0; i-- {
		total += uint64(45 + len(all[i].Payload))
		cut = i
		if total >= sizeBytes {
			break
		}
	}
	return all[cut:], nil
}

func (f *fakeStore) LoadIndexRange(seg *Segment, baseOffset, startOffset, endOffset uint64) (*IndexRange, error) {
	f.mu.Lock()
	n := uint32(len(f.logs[seg]))
	f.mu.Unlock()
	return &IndexRange{Start: Index{Position: 0}, End: Index{Position: n}}, nil
}

func (f *fakeStore) Delete(seg *Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.logs, seg)
	return nil
}

// singleMessageBatch builds a batch holding one message whose framed
// batch size is exactly sizeBytes, by padding the payload.
func singleMessageBatch(t *testing.T, offset, timestamp uint64, sizeBytes uint32) batching.MessagesBatch {
	t.Helper()
	const overheadWithoutPayload = 16 + 41 + 4 // batch frame + message fixed header + length field
	require.Greater(t, int(sizeBytes), overheadWithoutPayload)
	payload := make([]byte, int(sizeBytes)-overheadWithoutPayload)
	m := message.New(message.NewID(), timestamp, nil, payload)
	m.Offset = offset
	batch := batching.Pack(offset, 0, []message.Message{m})
	require.Equal(t, sizeBytes, batch.SizeBytes())
	return batch
}

func newTestSegment(cfg Config) (*Segment, *fakeStore) {
	store := newFakeStore()
	seg := Create(1, 1, 1, 0, "log", "index", "timeindex", cfg, store)
	return seg, store
}

func TestAppendMessagesAccumulatesBuffer(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true, TimeIndexesEnabled: true})

	batch := singleMessageBatch(t, 0, 1000, 400)
	require.NoError(t, seg.AppendMessages(batch, 0, 1000))

	assert.Equal(t, uint64(0), seg.CurrentOffset)
	assert.Equal(t, uint32(400), seg.CurrentSizeBytes)
	assert.Equal(t, uint64(1), seg.MessagesCount())
}

func TestAppendMessagesRejectsOnClosedSegment(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 400, IndexesEnabled: true})
	batch := singleMessageBatch(t, 0, 1000, 400)
	require.NoError(t, seg.AppendMessages(batch, 0, 1000))
	require.NoError(t, seg.PersistMessages())
	seg.Close()
	require.True(t, seg.IsClosed)

	err := seg.AppendMessages(singleMessageBatch(t, 1, 1001, 400), 1, 1001)
	assert.Error(t, err)
}

// TestReadFromBufferAndDisk: a segment with 5 persisted messages (offsets
// 0-4) and 3 unsaved (offsets 5-7); reading 4 messages from offset 3 must
// return offsets 3,4 (disk) concatenated with 5,6 (buffer), in order.
func TestReadFromBufferAndDisk(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true, TimeIndexesEnabled: true})

	messages := make([]message.Message, 0, 8)
	for i := uint64(0); i < 8; i++ {
		m := message.New(message.NewID(), 1000+i, nil, []byte("payload"))
		m.Offset = i
		messages = append(messages, m)
	}

	// Persist offsets 0-4 as individual one-message batches so the
	// in-memory index has one entry per batch.
	for i := 0; i < 5; i++ {
		batch := batching.Pack(messages[i].Offset, 0, []message.Message{messages[i]})
		require.NoError(t, seg.AppendMessages(batch, messages[i].Offset, messages[i].Timestamp))
	}
	require.NoError(t, seg.PersistMessages())
	require.False(t, seg.IsClosed)

	// Buffer offsets 5-7, left unsaved.
	for i := 5; i < 8; i++ {
		batch := batching.Pack(messages[i].Offset, 0, []message.Message{messages[i]})
		require.NoError(t, seg.AppendMessages(batch, messages[i].Offset, messages[i].Timestamp))
	}

	got, err := seg.GetMessages(3, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	offsets := make([]uint64, len(got))
	for i, m := range got {
		offsets[i] = m.Offset
	}
	assert.Equal(t, []uint64{3, 4, 5, 6}, offsets)
}

func TestGetMessagesDiskOnlyAndBufferOnly(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, IndexesEnabled: true, TimeIndexesEnabled: true})

	for i := uint64(0); i < 3; i++ {
		m := message.New(message.NewID(), 1000+i, nil, []byte("x"))
		m.Offset = i
		batch := batching.Pack(i, 0, []message.Message{m})
		require.NoError(t, seg.AppendMessages(batch, i, m.Timestamp))
	}
	require.NoError(t, seg.PersistMessages())

	for i := uint64(3); i < 5; i++ {
		m := message.New(message.NewID(), 1000+i, nil, []byte("y"))
		m.Offset = i
		batch := batching.Pack(i, 0, []message.Message{m})
		require.NoError(t, seg.AppendMessages(batch, i, m.Timestamp))
	}

	diskOnly, err := seg.GetMessages(0, 3)
	require.NoError(t, err)
	require.Len(t, diskOnly, 3)

	bufferOnly, err := seg.GetMessages(3, 2)
	require.NoError(t, err)
	require.Len(t, bufferOnly, 2)
	assert.Equal(t, uint64(3), bufferOnly[0].Offset)
	assert.Equal(t, uint64(4), bufferOnly[1].Offset)
}

func TestIsFullBySize(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 400})
	assert.False(t, seg.IsFull())
	batch := singleMessageBatch(t, 0, 1000, 400)
	require.NoError(t, seg.AppendMessages(batch, 0, 1000))
	assert.True(t, seg.IsFull())
}

func TestIsFullByAge(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, MessageExpiry: time.Nanosecond})
	ts := uint64(time.Now().Add(-time.Hour).UnixMicro())
	batch := singleMessageBatch(t, 0, ts, 400)
	require.NoError(t, seg.AppendMessages(batch, 0, ts))
	assert.True(t, seg.IsFull())
}

func TestFindOffsetByTimestamp(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, TimeIndexesEnabled: true})

	for i := uint64(0); i < 3; i++ {
		m := message.New(message.NewID(), 1000+i*100, nil, []byte("z"))
		m.Offset = i
		batch := batching.Pack(i, 0, []message.Message{m})
		require.NoError(t, seg.AppendMessages(batch, i, m.Timestamp))
	}

	offset, ok := seg.FindOffsetByTimestamp(1150)
	require.True(t, ok)
	assert.Equal(t, uint64(2), offset)

	_, ok = seg.FindOffsetByTimestamp(5000)
	assert.False(t, ok)
}

func TestIsExpiredRequiresClosedSegment(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, MessageExpiry: time.Microsecond})
	now := time.Now()
	nowMicros := uint64(now.UnixMicro())
	require.NoError(t, seg.AppendMessages(singleMessageBatch(t, 0, nowMicros-1_000_000, 400), 0, nowMicros-1_000_000))

	assert.False(t, seg.IsExpired(now), "an open segment is never expired")

	seg.Close()
	assert.True(t, seg.IsExpired(now))
}

func TestIsExpiredFalseBeforeMessageExpiryElapses(t *testing.T) {
	seg, _ := newTestSegment(Config{MaxSizeBytes: 1 << 20, MessageExpiry: time.Hour})
	now := time.Now()
	nowMicros := uint64(now.UnixMicro())
	require.NoError(t, seg.AppendMessages(singleMessageBatch(t, 0, nowMicros, 400), 0, nowMicros))
	seg.Close()

	assert.False(t, seg.IsExpired(now))
}

func TestDeleteRemovesUnderlyingLog(t *testing.T) {
	seg, store := newTestSegment(Config{MaxSizeBytes: 1 << 20})
	require.NoError(t, seg.AppendMessages(singleMessageBatch(t, 0, 1000, 400), 0, 1000))
	require.NoError(t, seg.PersistMessages())
	seg.Close()

	require.NoError(t, seg.Delete())
	_, ok := store.logs[seg]
	assert.False(t, ok)
}
