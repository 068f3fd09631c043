// Package partition owns a partition's ordered sequence of segments and
// its two consumer-offset maps, routing appends to the active segment and
// serving polls across one or more segments.
package partition

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowforge/streambroker/internal/batching"
	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/cache"
	"github.com/flowforge/streambroker/internal/consumer"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/metrics"
	"github.com/flowforge/streambroker/internal/segment"
)

// Consumer identifies an offset-tracking entity: either a single consumer
// or a consumer group.
type Consumer = consumer.Consumer

// ConsumerKind distinguishes an individual consumer from a consumer
// group's shared cursor.
type ConsumerKind = consumer.Kind

const (
	KindConsumer      = consumer.KindConsumer
	KindConsumerGroup = consumer.KindConsumerGroup
)

// ConsumerOffset is a persisted progress cursor for one consumer (or
// group) on one partition.
type ConsumerOffset struct {
	Kind        ConsumerKind
	ConsumerID  uint32
	Offset      uint64
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

// Storage is the persistence capability a Partition needs for its
// consumer-offset maps. Segment persistence goes through segment.Storage,
// obtained indirectly via the SegmentFactory below.
type Storage interface {
	SaveConsumerOffset(offset ConsumerOffset) error
	LoadConsumerOffsets(kind ConsumerKind, streamID, topicID, partitionID uint32) ([]ConsumerOffset, error)
}

// SegmentFactory creates a new, empty, open segment starting at
// startOffset, wired to the correct on-disk paths and storage backend.
// Supplied by the storage layer so this package stays ignorant of path
// conventions.
type SegmentFactory func(startOffset uint64) *segment.Segment

// CurrentOffset is a signed wrapper distinguishing "no messages yet"
// (-1) from offset 0, the first valid offset.
type CurrentOffset int64

// NoMessages is the sentinel value of an empty partition's CurrentOffset.
const NoMessages CurrentOffset = -1

// HasMessages reports whether the partition has ever accepted a message.
func (o CurrentOffset) HasMessages() bool { return o >= 0 }

// Value returns the offset as a plain uint64; only meaningful when
// HasMessages is true.
func (o CurrentOffset) Value() uint64 { return uint64(o) }

// Partition is an ordered, append-only sequence of segments plus the
// offset bookkeeping for its consumers.
type Partition struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32

	mu            sync.RWMutex
	segments      []*segment.Segment
	currentOffset CurrentOffset
	newSegment    SegmentFactory

	offsetsMu            sync.RWMutex
	consumerOffsets      map[uint32]ConsumerOffset
	consumerGroupOffsets map[uint32]ConsumerOffset

	storage Storage

	cache *cache.LRU

	watermarkBytes uint64
	limiter        *rate.Limiter
}

// New constructs an empty partition with one initial open segment
// starting at offset 0.
func New(streamID, topicID, partitionID uint32, newSegment SegmentFactory, storage Storage) *Partition {
	return Load(streamID, topicID, partitionID, nil, newSegment, storage)
}

// Load constructs a partition from segments recovered off disk, in order,
// deriving current_offset from the newest segment that holds messages so
// a restart is indistinguishable from having never restarted. With no
// recovered segments it behaves exactly like New.
func Load(streamID, topicID, partitionID uint32, segments []*segment.Segment, newSegment SegmentFactory, storage Storage) *Partition {
	p := &Partition{
		StreamID:             streamID,
		TopicID:              topicID,
		PartitionID:          partitionID,
		currentOffset:        NoMessages,
		newSegment:           newSegment,
		storage:              storage,
		consumerOffsets:      make(map[uint32]ConsumerOffset),
		consumerGroupOffsets: make(map[uint32]ConsumerOffset),
	}
	if len(segments) == 0 {
		p.segments = append(p.segments, newSegment(0))
		return p
	}
	p.segments = segments
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].MessagesCount() > 0 {
			p.currentOffset = CurrentOffset(segments[i].CurrentOffset)
			break
		}
	}
	return p
}

// LoadConsumerOffsets reads both offset kinds from storage and installs
// them, called once during partition initialization so a restart is
// indistinguishable from having never restarted.
func (p *Partition) LoadConsumerOffsets() error {
	individual, err := p.storage.LoadConsumerOffsets(KindConsumer, p.StreamID, p.TopicID, p.PartitionID)
	if err != nil {
		return brokerr.ErrIo(err)
	}
	group, err := p.storage.LoadConsumerOffsets(KindConsumerGroup, p.StreamID, p.TopicID, p.PartitionID)
	if err != nil {
		return brokerr.ErrIo(err)
	}

	p.offsetsMu.Lock()
	defer p.offsetsMu.Unlock()
	for _, o := range individual {
		p.consumerOffsets[o.ConsumerID] = o
	}
	for _, o := range group {
		p.consumerGroupOffsets[o.ConsumerID] = o
	}
	return nil
}

func (p *Partition) activeSegment() *segment.Segment {
	return p.segments[len(p.segments)-1]
}

// SetCache installs a shared read cache for closed segments. Closed
// segments are immutable, so a cached load never goes stale; entries for
// deleted segments are dropped by the retention sweep. A nil cache
// disables caching.
func (p *Partition) SetCache(c *cache.LRU) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = c
}

// SetBackpressure configures the append watermark: once the active
// segment's unsaved buffer exceeds watermarkBytes, AppendMessages must
// acquire a token from limiter before admitting more messages, shedding
// load with ErrThrottled rather than growing the buffer without bound.
// A nil limiter disables backpressure.
func (p *Partition) SetBackpressure(watermarkBytes uint64, limiter *rate.Limiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watermarkBytes = watermarkBytes
	p.limiter = limiter
}

// AppendMessages assigns contiguous offsets to messages, packs them into
// one batch, and appends it to the active segment, rolling over to a
// fresh segment when the active one becomes full. The previously active
// segment's persist must succeed before the rollover is visible.
func (p *Partition) AppendMessages(messages []message.Message) error {
	if len(messages) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limiter != nil && p.watermarkBytes > 0 && p.activeSegment().UnsavedBytes() > p.watermarkBytes {
		if !p.limiter.Allow() {
			return brokerr.ErrThrottled(p.PartitionID)
		}
	}

	baseOffset := uint64(0)
	if p.currentOffset.HasMessages() {
		baseOffset = p.currentOffset.Value() + 1
	}

	for i := range messages {
		messages[i].Offset = baseOffset + uint64(i)
	}
	lastOffset := messages[len(messages)-1].Offset
	lastTimestamp := messages[len(messages)-1].Timestamp

	batch := batching.Pack(baseOffset, uint32(len(messages)-1), messages)

	active := p.activeSegment()
	if active.IsFull() || active.WouldOverflow(batch.SizeBytes()) {
		if err := active.PersistMessages(); err != nil {
			return err
		}
		active.Close()
		active = p.newSegment(baseOffset)
		p.segments = append(p.segments, active)
		metrics.ForPartition(p.StreamID, p.TopicID, p.PartitionID).RecordSegmentRollover()
	}

	if err := active.AppendMessages(batch, lastOffset, lastTimestamp); err != nil {
		return err
	}
	p.currentOffset = CurrentOffset(lastOffset)

	return nil
}

// Flush persists the active segment's unsaved buffer without forcing a
// rollover. Intended for the periodic message-saver tick.
func (p *Partition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeSegment().PersistMessages()
}

// GetMessagesByOffset collects messages across consecutive segments
// starting at start until count messages are accumulated or
// current_offset is reached.
func (p *Partition) GetMessagesByOffset(start uint64, count uint32) ([]message.Message, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.currentOffset.HasMessages() || count == 0 {
		return nil, nil
	}

	out := make([]message.Message, 0, count)
	offset := start
	startIdx := -1
	for i, s := range p.segments {
		end := s.CurrentOffset
		if s.IsClosed {
			end = s.EndOffset
		}
		if offset <= end {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return out, nil
	}

	for i := startIdx; i < len(p.segments) && uint32(len(out)) < count; i++ {
		s := p.segments[i]
		remaining := count - uint32(len(out))
		messages, err := p.segmentMessages(s, offset, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, messages...)
		offset = s.CurrentOffset + 1
	}
	return out, nil
}

// segmentMessages reads a range from one segment, serving closed segments
// through the shared cache when one is installed.
func (p *Partition) segmentMessages(s *segment.Segment, offset uint64, count uint32) ([]message.Message, error) {
	if p.cache == nil || !s.IsClosed {
		return s.GetMessages(offset, count)
	}

	key := cache.Key{StreamID: p.StreamID, TopicID: p.TopicID, PartitionID: p.PartitionID, BaseOffset: s.StartOffset}
	all, ok := p.cache.Get(key)
	if ok {
		metrics.RecordCacheHit()
	} else {
		metrics.RecordCacheMiss()
		var err error
		all, err = s.GetAllMessages()
		if err != nil {
			return nil, err
		}
		p.cache.Put(key, all)
	}

	out := make([]message.Message, 0, count)
	for _, m := range all {
		if m.Offset < offset {
			continue
		}
		if uint32(len(out)) == count {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

// GetFirstMessages returns up to count messages from the start of the
// partition's log.
func (p *Partition) GetFirstMessages(count uint32) ([]message.Message, error) {
	return p.GetMessagesByOffset(0, count)
}

// GetLastMessages returns up to count messages ending at current_offset.
func (p *Partition) GetLastMessages(count uint32) ([]message.Message, error) {
	p.mu.RLock()
	current := p.currentOffset
	p.mu.RUnlock()
	if !current.HasMessages() {
		return nil, nil
	}
	start := uint64(0)
	if current.Value()+1 > uint64(count) {
		start = current.Value() + 1 - uint64(count)
	}
	return p.GetMessagesByOffset(start, count)
}

// GetNextMessages advances from the consumer's stored offset (or 0 when
// absent), returning up to count messages.
func (p *Partition) GetNextMessages(consumer Consumer, count uint32) ([]message.Message, error) {
	offset := p.GetConsumerOffset(consumer)
	start := offset
	if offset > 0 || p.hasStoredOffset(consumer) {
		start = offset + 1
	}
	return p.GetMessagesByOffset(start, count)
}

func (p *Partition) hasStoredOffset(consumer Consumer) bool {
	p.offsetsMu.RLock()
	defer p.offsetsMu.RUnlock()
	m := p.offsetMap(consumer.Kind)
	_, ok := m[consumer.ID]
	return ok
}

// GetMessagesByTimestamp finds, per segment in order, the first relative
// offset whose time index entry has timestamp >= ts, then behaves as
// offset-based.
func (p *Partition) GetMessagesByTimestamp(ts uint64, count uint32) ([]message.Message, error) {
	p.mu.RLock()
	segments := p.segments
	p.mu.RUnlock()

	for _, s := range segments {
		offset, ok := s.FindOffsetByTimestamp(ts)
		if ok {
			return p.GetMessagesByOffset(offset, count)
		}
	}
	return nil, nil
}

func (p *Partition) offsetMap(kind ConsumerKind) map[uint32]ConsumerOffset {
	if kind == KindConsumerGroup {
		return p.consumerGroupOffsets
	}
	return p.consumerOffsets
}

// GetConsumerOffset returns the stored offset for consumer, or 0 when
// absent.
func (p *Partition) GetConsumerOffset(consumer Consumer) uint64 {
	p.offsetsMu.RLock()
	defer p.offsetsMu.RUnlock()
	if o, ok := p.offsetMap(consumer.Kind)[consumer.ID]; ok {
		return o.Offset
	}
	return 0
}

// StoreConsumerOffset upserts a consumer's progress cursor. Fails with
// InvalidOffset if offset exceeds the partition's current_offset. The
// storage write precedes the in-memory upsert, so a crash between the two
// never exposes an offset the caller wasn't told succeeded.
func (p *Partition) StoreConsumerOffset(consumer Consumer, offset uint64) error {
	p.mu.RLock()
	current := p.currentOffset
	p.mu.RUnlock()

	if current.HasMessages() && offset > current.Value() {
		return brokerr.ErrInvalidOffset(offset)
	}
	if !current.HasMessages() && offset > 0 {
		return brokerr.ErrInvalidOffset(offset)
	}

	record := ConsumerOffset{
		Kind:        consumer.Kind,
		ConsumerID:  consumer.ID,
		Offset:      offset,
		StreamID:    p.StreamID,
		TopicID:     p.TopicID,
		PartitionID: p.PartitionID,
	}

	if err := p.saveConsumerOffsetWithRetry(record); err != nil {
		return brokerr.ErrIo(err)
	}

	p.offsetsMu.Lock()
	p.offsetMap(consumer.Kind)[consumer.ID] = record
	p.offsetsMu.Unlock()

	return nil
}

// saveConsumerOffsetWithRetry retries a transient storage failure once
// before surfacing it, per the propagation policy for consumer-offset
// persistence.
func (p *Partition) saveConsumerOffsetWithRetry(record ConsumerOffset) error {
	err := p.storage.SaveConsumerOffset(record)
	if err == nil {
		return nil
	}
	return p.storage.SaveConsumerOffset(record)
}

// CurrentOffsetValue reports the partition's current_offset sentinel.
func (p *Partition) CurrentOffsetValue() CurrentOffset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentOffset
}

// Segments returns the partition's segments in order. The caller must
// not mutate the returned slice.
func (p *Partition) Segments() []*segment.Segment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.segments
}

// DeleteExpiredSegments removes every closed segment whose newest message
// has aged past message_expiry, keeping the active segment untouched.
// Segments are dropped in order from the head; the first non-expired
// segment stops the sweep since segments age out oldest-first.
func (p *Partition) DeleteExpiredSegments(now time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for len(p.segments) > 1 && p.segments[0].IsExpired(now) {
		victim := p.segments[0]
		if err := victim.Delete(); err != nil {
			return removed, err
		}
		if p.cache != nil {
			p.cache.Invalidate(cache.Key{StreamID: p.StreamID, TopicID: p.TopicID, PartitionID: p.PartitionID, BaseOffset: victim.StartOffset})
		}
		p.segments = p.segments[1:]
		removed++
	}
	if removed > 0 {
		metrics.ForPartition(p.StreamID, p.TopicID, p.PartitionID).RecordSegmentsExpired(removed)
	}
	return removed, nil
}
