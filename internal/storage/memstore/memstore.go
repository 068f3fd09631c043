// Package memstore is an in-memory double of the segment/partition
// storage capability, used by tests that would otherwise pay real file
// I/O for no benefit.
package memstore

import (
	"sort"
	"sync"

	"github.com/flowforge/streambroker/internal/batching"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/segment"
)

type segmentLog struct {
	mu    sync.Mutex
	bytes []byte
}

// Store backs both segment.Storage and partition.Storage with plain
// process memory.
type Store struct {
	mu   sync.Mutex
	logs map[*segment.Segment]*segmentLog

	offsetsMu sync.Mutex
	offsets   map[string]partition.ConsumerOffset
}

// New returns an empty store.
func New() *Store {
	return &Store{
		logs:    make(map[*segment.Segment]*segmentLog),
		offsets: make(map[string]partition.ConsumerOffset),
	}
}

func (s *Store) logFor(seg *segment.Segment) *segmentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[seg]
	if !ok {
		l = &segmentLog{}
		s.logs[seg] = l
	}
	return l
}

// SaveMessages appends the packed batches to the segment's in-memory log,
// returning the number of bytes written.
func (s *Store) SaveMessages(seg *segment.Segment, batches []batching.MessagesBatch) (uint32, error) {
	l := s.logFor(seg)
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.bytes)
	for _, b := range batches {
		l.bytes = b.AppendBytes(l.bytes)
	}
	return uint32(len(l.bytes) - before), nil
}

// SaveIndex and SaveTimeIndex are no-ops: memstore keeps the segment's own
// in-memory indexes as the source of truth, mirroring how a test double
// is expected to skip the on-disk mirror.
func (s *Store) SaveIndex(seg *segment.Segment, currentPosition uint32, batches []batching.MessagesBatch) error {
	return nil
}

func (s *Store) SaveTimeIndex(seg *segment.Segment, batches []batching.MessagesBatch) error {
	return nil
}

// LoadMessages decodes every batch within the byte range described by
// indexRange.
func (s *Store) LoadMessages(seg *segment.Segment, indexRange segment.IndexRange) ([]message.Message, error) {
	l := s.logFor(seg)
	l.mu.Lock()
	defer l.mu.Unlock()

	start := indexRange.Start.Position
	end := indexRange.End.Position
	if int(end) > len(l.bytes) {
		end = uint32(len(l.bytes))
	}
	if start > end {
		return nil, nil
	}

	out := make([]message.Message, 0)
	pos := int(start)
	for pos < int(end) {
		batch, n, err := batching.FromBytes(l.bytes[pos:])
		if err != nil {
			return nil, err
		}
		messages, err := batch.Unpack()
		if err != nil {
			return nil, err
		}
		out = append(out, messages...)
		pos += n
	}
	return out, nil
}

// LoadNewestMessagesBySize returns the newest suffix of messages whose
// cumulative encoded size is at least sizeBytes.
func (s *Store) LoadNewestMessagesBySize(seg *segment.Segment, sizeBytes uint64) ([]message.Message, error) {
	l := s.logFor(seg)
	l.mu.Lock()
	buf := append([]byte(nil), l.bytes...)
	l.mu.Unlock()

	var all []message.Message
	pos := 0
	for pos < len(buf) {
		batch, n, err := batching.FromBytes(buf[pos:])
		if err != nil {
			return nil, err
		}
		messages, err := batch.Unpack()
		if err != nil {
			return nil, err
		}
		all = append(all, messages...)
		pos += n
	}

	var total uint64
	start := len(all)
	for start > 0 {
		total += uint64(all[start-1].SizeBytes())
		start--
		if total >= sizeBytes {
			break
		}
	}
	return all[start:], nil
}

// LoadIndexRange is reached only for segments whose in-memory index is
// disabled or empty; it returns the full buffer range, and the segment
// filters the decoded messages down to the requested offsets.
func (s *Store) LoadIndexRange(seg *segment.Segment, baseOffset, startOffset, endOffset uint64) (*segment.IndexRange, error) {
	l := s.logFor(seg)
	l.mu.Lock()
	size := uint32(len(l.bytes))
	l.mu.Unlock()
	return &segment.IndexRange{
		Start: segment.Index{RelativeOffset: uint32(startOffset - baseOffset), Position: 0},
		End:   segment.Index{RelativeOffset: uint32(endOffset - baseOffset), Position: size},
	}, nil
}

// Delete drops the segment's in-memory log entirely.
func (s *Store) Delete(seg *segment.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, seg)
	return nil
}

func offsetKey(kind partition.ConsumerKind, streamID, topicID, partitionID, consumerID uint32) string {
	b := make([]byte, 0, 24)
	b = append(b, byte(kind))
	for _, v := range []uint32{streamID, topicID, partitionID, consumerID} {
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	return string(b)
}

// SaveConsumerOffset persists a single consumer-offset record.
func (s *Store) SaveConsumerOffset(offset partition.ConsumerOffset) error {
	key := offsetKey(offset.Kind, offset.StreamID, offset.TopicID, offset.PartitionID, offset.ConsumerID)
	s.offsetsMu.Lock()
	s.offsets[key] = offset
	s.offsetsMu.Unlock()
	return nil
}

// LoadConsumerOffsets returns every stored offset of the given kind for a
// partition.
func (s *Store) LoadConsumerOffsets(kind partition.ConsumerKind, streamID, topicID, partitionID uint32) ([]partition.ConsumerOffset, error) {
	s.offsetsMu.Lock()
	defer s.offsetsMu.Unlock()

	out := make([]partition.ConsumerOffset, 0)
	for _, o := range s.offsets {
		if o.Kind == kind && o.StreamID == streamID && o.TopicID == topicID && o.PartitionID == partitionID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsumerID < out[j].ConsumerID })
	return out, nil
}
