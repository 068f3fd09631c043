// Package segment owns a single partition segment: one log file, one
// byte-offset index, one time index, and the in-memory unsaved buffer
// that sits ahead of the last persist.
package segment

import (
	"sort"
	"sync"
	"time"

	"github.com/flowforge/streambroker/internal/batching"
	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/message"
)

// Index is a byte-offset index entry: position is the absolute byte
// offset in the log file at which the batch ending at RelativeOffset
// begins.
type Index struct {
	RelativeOffset uint32
	Position       uint32
}

// TimeIndex is a time index entry, sorted by both fields.
type TimeIndex struct {
	RelativeOffset uint32
	Timestamp      uint64
}

// IndexRange is a contiguous log-file byte range delimited by two index
// entries.
type IndexRange struct {
	Start Index
	End   Index
}

// Storage is the persistence capability a Segment needs. Declared here,
// next to its only consumer, so filestore/memstore implementations
// depend on this package rather than the reverse.
type Storage interface {
	SaveMessages(seg *Segment, batches []batching.MessagesBatch) (uint32, error)
	SaveIndex(seg *Segment, currentPosition uint32, batches []batching.MessagesBatch) error
	SaveTimeIndex(seg *Segment, batches []batching.MessagesBatch) error
	LoadMessages(seg *Segment, indexRange IndexRange) ([]message.Message, error)
	LoadNewestMessagesBySize(seg *Segment, sizeBytes uint64) ([]message.Message, error)
	LoadIndexRange(seg *Segment, baseOffset, startOffset, endOffset uint64) (*IndexRange, error)
	Delete(seg *Segment) error
}

// Config controls the two independently enabled index capabilities and
// the rollover thresholds.
type Config struct {
	MaxSizeBytes       uint32
	MessageExpiry      time.Duration
	IndexesEnabled     bool
	TimeIndexesEnabled bool
}

// Segment is the unit of append, persist, and rollover within a
// partition's log.
type Segment struct {
	mu sync.RWMutex

	StreamID    uint32
	TopicID     uint32
	PartitionID uint32

	StartOffset      uint64
	EndOffset        uint64
	CurrentOffset    uint64
	CurrentSizeBytes uint32
	IsClosed         bool

	LogPath       string
	IndexPath     string
	TimeIndexPath string

	cfg         Config
	indexes     []Index
	timeIndexes []TimeIndex

	unsavedBatches      []batching.MessagesBatch
	firstBufferedOffset *uint64
	lastBufferedOffset  uint64

	firstMessageTimestamp uint64
	lastMessageTimestamp  uint64

	storage Storage
}

// Create allocates a new, empty, open segment starting at startOffset.
func Create(streamID, topicID, partitionID uint32, startOffset uint64, logPath, indexPath, timeIndexPath string, cfg Config, storage Storage) *Segment {
	return &Segment{
		StreamID:      streamID,
		TopicID:       topicID,
		PartitionID:   partitionID,
		StartOffset:   startOffset,
		LogPath:       logPath,
		IndexPath:     indexPath,
		TimeIndexPath: timeIndexPath,
		cfg:           cfg,
		storage:       storage,
	}
}

// State is a segment's persisted identity as recovered from its on-disk
// files when a partition reopens.
type State struct {
	StartOffset      uint64
	EndOffset        uint64
	CurrentOffset    uint64
	CurrentSizeBytes uint32
	IsClosed         bool
	Indexes          []Index
	TimeIndexes      []TimeIndex
}

// Open rebuilds a segment from recovered state, ready to serve reads and,
// when not closed, to continue appending where the previous process
// stopped.
func Open(streamID, topicID, partitionID uint32, st State, logPath, indexPath, timeIndexPath string, cfg Config, storage Storage) *Segment {
	s := &Segment{
		StreamID:         streamID,
		TopicID:          topicID,
		PartitionID:      partitionID,
		StartOffset:      st.StartOffset,
		EndOffset:        st.EndOffset,
		CurrentOffset:    st.CurrentOffset,
		CurrentSizeBytes: st.CurrentSizeBytes,
		IsClosed:         st.IsClosed,
		LogPath:          logPath,
		IndexPath:        indexPath,
		TimeIndexPath:    timeIndexPath,
		cfg:              cfg,
		indexes:          st.Indexes,
		timeIndexes:      st.TimeIndexes,
		storage:          storage,
	}
	if n := len(st.TimeIndexes); n > 0 {
		s.firstMessageTimestamp = st.TimeIndexes[0].Timestamp
		s.lastMessageTimestamp = st.TimeIndexes[n-1].Timestamp
	}
	return s
}

// MessagesCount returns 0 when the segment has never been appended to,
// else the count of messages it holds.
func (s *Segment) MessagesCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesCountLocked()
}

func (s *Segment) messagesCountLocked() uint64 {
	if s.CurrentSizeBytes == 0 {
		return 0
	}
	return s.CurrentOffset - s.StartOffset + 1
}

// GetMessages resolves a range per the buffer/disk union order: disk-only,
// buffer-only, or disk-then-buffer.
func (s *Segment) GetMessages(offset uint64, count uint32) ([]message.Message, error) {
	if count == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < s.StartOffset {
		offset = s.StartOffset
	}
	endOffset := offset + uint64(count-1)
	if endOffset > s.CurrentOffset {
		endOffset = s.CurrentOffset
	}

	if s.firstBufferedOffset == nil {
		return s.loadMessagesFromDisk(offset, endOffset)
	}
	if endOffset < *s.firstBufferedOffset {
		return s.loadMessagesFromDisk(offset, endOffset)
	}
	if offset >= *s.firstBufferedOffset {
		return s.loadMessagesFromBuffer(offset, endOffset)
	}

	diskMessages, err := s.loadMessagesFromDisk(offset, endOffset)
	if err != nil {
		return nil, err
	}
	bufferedMessages, err := s.loadMessagesFromBuffer(offset, endOffset)
	if err != nil {
		return nil, err
	}
	return append(diskMessages, bufferedMessages...), nil
}

// FindOffsetByTimestamp returns the first absolute offset whose time
// index entry carries a timestamp >= ts, within this segment. ok is false
// when time indexing is disabled, the index is empty, or no entry
// qualifies (the caller should continue to the next segment).
func (s *Segment) FindOffsetByTimestamp(ts uint64) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.cfg.TimeIndexesEnabled || len(s.timeIndexes) == 0 {
		return 0, false
	}
	idx := sort.Search(len(s.timeIndexes), func(i int) bool {
		return s.timeIndexes[i].Timestamp >= ts
	})
	if idx == len(s.timeIndexes) {
		return 0, false
	}
	return s.StartOffset + uint64(s.timeIndexes[idx].RelativeOffset), true
}

// GetAllMessages returns every message the segment currently holds.
func (s *Segment) GetAllMessages() ([]message.Message, error) {
	s.mu.RLock()
	count := s.messagesCountLocked()
	start := s.StartOffset
	s.mu.RUnlock()
	if count == 0 {
		return nil, nil
	}
	return s.GetMessages(start, uint32(count))
}

// GetNewestMessagesBySize delegates to storage, returning the newest
// suffix whose cumulative encoded size is at least sizeBytes.
func (s *Segment) GetNewestMessagesBySize(sizeBytes uint64) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage.LoadNewestMessagesBySize(s, sizeBytes)
}

func (s *Segment) loadMessagesFromBuffer(offset, endOffset uint64) ([]message.Message, error) {
	out := make([]message.Message, 0)
	for _, batch := range s.unsavedBatches {
		messages, err := batch.Unpack()
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			if m.Offset >= offset && m.Offset <= endOffset {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// filterOffsetRange keeps the messages whose offset falls in
// [startOffset, endOffset]. Disk loads decode whole batches, which may
// carry messages on either side of the requested range.
func filterOffsetRange(messages []message.Message, startOffset, endOffset uint64) []message.Message {
	out := make([]message.Message, 0, len(messages))
	for _, m := range messages {
		if m.Offset >= startOffset && m.Offset <= endOffset {
			out = append(out, m)
		}
	}
	return out
}

func (s *Segment) loadMessagesFromDisk(startOffset, endOffset uint64) ([]message.Message, error) {
	messages, err := s.loadBatchRangeFromDisk(startOffset, endOffset)
	if err != nil {
		return nil, err
	}
	return filterOffsetRange(messages, startOffset, endOffset), nil
}

func (s *Segment) loadBatchRangeFromDisk(startOffset, endOffset uint64) ([]message.Message, error) {
	if startOffset > endOffset || endOffset > s.CurrentOffset {
		return nil, nil
	}

	if s.cfg.IndexesEnabled && len(s.indexes) > 0 {
		relativeStart := uint32(startOffset - s.StartOffset)
		relativeEnd := uint32(endOffset - s.StartOffset)

		startIdx := sort.Search(len(s.indexes), func(i int) bool {
			return s.indexes[i].RelativeOffset >= relativeStart
		})
		if startIdx == len(s.indexes) {
			return nil, nil
		}
		endIdx := sort.Search(len(s.indexes), func(i int) bool {
			return s.indexes[i].RelativeOffset >= relativeEnd
		})

		startPosition := s.indexes[startIdx].Position
		var endPosition uint32
		if endIdx+1 < len(s.indexes) {
			endPosition = s.indexes[endIdx+1].Position
		} else {
			endPosition = s.CurrentSizeBytes
		}

		return s.storage.LoadMessages(s, IndexRange{
			Start: Index{RelativeOffset: relativeStart, Position: startPosition},
			End:   Index{RelativeOffset: relativeEnd, Position: endPosition},
		})
	}

	indexRange, err := s.storage.LoadIndexRange(s, s.StartOffset, startOffset, endOffset)
	if err != nil {
		return nil, err
	}
	if indexRange == nil {
		return nil, nil
	}
	return s.storage.LoadMessages(s, *indexRange)
}

// AppendMessages appends a packed batch to the unsaved buffer. lastMessageOffset
// and lastMessageTimestamp describe the batch's final message and drive the
// index entries; per the batch-last convention the time index shares the
// same relative offset as the byte index.
func (s *Segment) AppendMessages(batch batching.MessagesBatch, lastMessageOffset, lastMessageTimestamp uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsClosed {
		return brokerr.ErrSegmentClosed(s.StartOffset, s.PartitionID)
	}

	s.storeIndexForBatch(lastMessageOffset, lastMessageTimestamp)

	if s.firstBufferedOffset == nil {
		first := batch.BaseOffset
		s.firstBufferedOffset = &first
	}
	if s.firstMessageTimestamp == 0 {
		s.firstMessageTimestamp = lastMessageTimestamp
	}
	s.lastMessageTimestamp = lastMessageTimestamp
	s.lastBufferedOffset = lastMessageOffset
	s.unsavedBatches = append(s.unsavedBatches, batch)

	s.CurrentOffset = lastMessageOffset
	s.CurrentSizeBytes += batch.SizeBytes()

	return nil
}

func (s *Segment) storeIndexForBatch(batchLastOffset, batchLastTimestamp uint64) {
	relativeOffset := uint32(batchLastOffset - s.StartOffset)
	if s.cfg.IndexesEnabled {
		s.indexes = append(s.indexes, Index{RelativeOffset: relativeOffset, Position: s.CurrentSizeBytes})
	}
	if s.cfg.TimeIndexesEnabled {
		s.timeIndexes = append(s.timeIndexes, TimeIndex{RelativeOffset: relativeOffset, Timestamp: batchLastTimestamp})
	}
}

// PersistMessages flushes the unsaved buffer to the log/index/time-index
// files. A no-op when the buffer is empty. Rollover is the partition's
// call (via Close); this only ever flushes.
func (s *Segment) PersistMessages() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.unsavedBatches) == 0 {
		return nil
	}

	savedBytes, err := s.storage.SaveMessages(s, s.unsavedBatches)
	if err != nil {
		return brokerr.ErrIo(err)
	}
	currentPosition := s.CurrentSizeBytes - savedBytes
	if err := s.storage.SaveIndex(s, currentPosition, s.unsavedBatches); err != nil {
		return brokerr.ErrIo(err)
	}
	if err := s.storage.SaveTimeIndex(s, s.unsavedBatches); err != nil {
		return brokerr.ErrIo(err)
	}

	s.unsavedBatches = s.unsavedBatches[:0]
	s.firstBufferedOffset = nil

	return nil
}

// Close marks the segment read-only at its current offset. Called by the
// partition once it has decided to roll over to a fresh segment; the
// caller must have already persisted any buffered messages.
func (s *Segment) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndOffset = s.CurrentOffset
	s.IsClosed = true
}

// IsFull reports whether the segment has crossed its size or age
// rollover threshold as it stands, independent of any pending append.
func (s *Segment) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isFullLocked()
}

// WouldOverflow reports whether appending a batch of addBytes would push
// the segment past its configured size limit. The partition calls this
// before appending so an oversized batch rolls to a new segment instead
// of stretching the current one past segment_max_size.
func (s *Segment) WouldOverflow(addBytes uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentSizeBytes+addBytes > s.cfg.MaxSizeBytes
}

// UnsavedBytes returns the size of the not-yet-persisted buffer, the
// signal the partition's append backpressure watermark is measured
// against.
func (s *Segment) UnsavedBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, batch := range s.unsavedBatches {
		total += uint64(batch.SizeBytes())
	}
	return total
}

// IsExpired reports whether every message in a closed segment has aged
// past message_expiry. An open segment is never expired: rollover
// (IsFull) closes it first once its oldest message ages out.
func (s *Segment) IsExpired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.IsClosed || s.cfg.MessageExpiry <= 0 || s.lastMessageTimestamp == 0 {
		return false
	}
	age := now.Sub(time.UnixMicro(int64(s.lastMessageTimestamp)))
	return age >= s.cfg.MessageExpiry
}

// Delete removes the segment's on-disk log, index, and time-index files.
// The segment must already be closed.
func (s *Segment) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Delete(s)
}

func (s *Segment) isFullLocked() bool {
	if s.CurrentSizeBytes >= s.cfg.MaxSizeBytes {
		return true
	}
	if s.cfg.MessageExpiry <= 0 || s.firstMessageTimestamp == 0 {
		return false
	}
	age := time.Duration(nowMicros()-s.firstMessageTimestamp) * time.Microsecond
	return age >= s.cfg.MessageExpiry
}

// nowMicros returns the current time in microseconds since epoch,
// matching Message.Timestamp's unit.
func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}
