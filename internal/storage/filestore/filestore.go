// Package filestore is the real, file-backed implementation of the
// segment and partition storage capabilities: one directory per
// partition holding log/index/time-index files and consumer-offset
// records, written with buffered os.File I/O.
package filestore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/batching"
	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/segment"
)

const (
	indexEntrySize     = 8
	timeIndexEntrySize = 12
)

// PartitionStore backs one partition's segment and consumer-offset
// storage on the local filesystem.
type PartitionStore struct {
	dir    string
	logger *zap.Logger
}

// Open creates (if absent) the on-disk layout for one partition and
// returns a store scoped to it.
func Open(basePath string, streamID, topicID, partitionID uint32, logger *zap.Logger) (*PartitionStore, error) {
	dir := filepath.Join(basePath, fmt.Sprintf("streams/%d/topics/%d/partitions/%d", streamID, topicID, partitionID))
	for _, sub := range []string{"log", "index", "time", "offsets/consumer", "offsets/group"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return &PartitionStore{dir: dir, logger: logger}, nil
}

func segmentFileName(startOffset uint64) string {
	return fmt.Sprintf("%020d", startOffset)
}

// NewSegmentFactory returns a partition.SegmentFactory that wires new
// segments to this store's on-disk paths.
func (p *PartitionStore) NewSegmentFactory(streamID, topicID, partitionID uint32, cfg segment.Config) partition.SegmentFactory {
	return func(startOffset uint64) *segment.Segment {
		name := segmentFileName(startOffset)
		logPath := filepath.Join(p.dir, "log", name+".log")
		indexPath := filepath.Join(p.dir, "index", name+".index")
		timeIndexPath := filepath.Join(p.dir, "time", name+".timeindex")
		return segment.Create(streamID, topicID, partitionID, startOffset, logPath, indexPath, timeIndexPath, cfg, p)
	}
}

// LoadSegments rebuilds every segment persisted under the partition's
// log/ directory, oldest first, with its in-memory indexes and recovered
// offsets. Every segment but the newest is closed; the newest is reopened
// for appends. An empty log/ directory yields nil, letting the caller
// fall back to a fresh partition.
func (p *PartitionStore) LoadSegments(streamID, topicID, partitionID uint32, cfg segment.Config) ([]*segment.Segment, error) {
	entries, err := os.ReadDir(filepath.Join(p.dir, "log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	starts := make([]uint64, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		start, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]*segment.Segment, 0, len(starts))
	for i, start := range starts {
		seg, err := p.loadSegment(streamID, topicID, partitionID, start, i < len(starts)-1, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

func (p *PartitionStore) loadSegment(streamID, topicID, partitionID uint32, startOffset uint64, closed bool, cfg segment.Config) (*segment.Segment, error) {
	name := segmentFileName(startOffset)
	logPath := filepath.Join(p.dir, "log", name+".log")
	indexPath := filepath.Join(p.dir, "index", name+".index")
	timeIndexPath := filepath.Join(p.dir, "time", name+".timeindex")

	info, err := os.Stat(logPath)
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	sizeBytes := uint32(info.Size())

	indexes, err := readIndexEntries(indexPath)
	if err != nil {
		return nil, err
	}
	timeIndexes, err := readTimeIndexEntries(timeIndexPath)
	if err != nil {
		return nil, err
	}

	currentOffset := startOffset
	switch {
	case len(indexes) > 0:
		currentOffset = startOffset + uint64(indexes[len(indexes)-1].RelativeOffset)
	case sizeBytes > 0:
		// Written with indexing disabled: recover the last offset by
		// scanning the batches themselves.
		currentOffset, err = lastOffsetInLog(logPath)
		if err != nil {
			return nil, err
		}
	}

	st := segment.State{
		StartOffset:      startOffset,
		CurrentOffset:    currentOffset,
		CurrentSizeBytes: sizeBytes,
		IsClosed:         closed,
		Indexes:          indexes,
		TimeIndexes:      timeIndexes,
	}
	if closed {
		st.EndOffset = currentOffset
	}
	return segment.Open(streamID, topicID, partitionID, st, logPath, indexPath, timeIndexPath, cfg, p), nil
}

func lastOffsetInLog(path string) (uint64, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read log: %w", err)
	}
	var last uint64
	pos := 0
	for pos < len(buf) {
		batch, n, err := batching.FromBytes(buf[pos:])
		if err != nil {
			return 0, err
		}
		last = batch.BaseOffset + uint64(batch.LastOffsetDelta)
		pos += n
	}
	return last, nil
}

func (p *PartitionStore) closeLogging(f *os.File, path string) {
	if err := f.Close(); err != nil {
		p.logger.Error("failed to close file", zap.String("path", path), zap.Error(err))
	}
}

// SaveMessages appends the packed batches to the segment's log file.
func (p *PartitionStore) SaveMessages(seg *segment.Segment, batches []batching.MessagesBatch) (uint32, error) {
	file, err := os.OpenFile(seg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return 0, fmt.Errorf("open log: %w", err)
	}
	defer p.closeLogging(file, seg.LogPath)

	var buf []byte
	for _, b := range batches {
		buf = b.AppendBytes(buf)
	}
	if _, err := file.Write(buf); err != nil {
		return 0, fmt.Errorf("write log: %w", err)
	}
	return uint32(len(buf)), nil
}

// SaveIndex appends one 8-byte entry per batch to the segment's index
// file, recomputing each batch's relative offset and running byte
// position from currentPosition rather than reading any in-memory state.
func (p *PartitionStore) SaveIndex(seg *segment.Segment, currentPosition uint32, batches []batching.MessagesBatch) error {
	file, err := os.OpenFile(seg.IndexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer p.closeLogging(file, seg.IndexPath)

	buf := make([]byte, 0, len(batches)*indexEntrySize)
	pos := currentPosition
	for _, b := range batches {
		lastOffset := b.BaseOffset + uint64(b.LastOffsetDelta)
		relativeOffset := uint32(lastOffset - seg.StartOffset)
		buf = binary.LittleEndian.AppendUint32(buf, relativeOffset)
		buf = binary.LittleEndian.AppendUint32(buf, pos)
		pos += b.SizeBytes()
	}
	_, err = file.Write(buf)
	return err
}

// SaveTimeIndex appends one 12-byte entry per batch, keyed by the
// timestamp of that batch's last message (the batch-last convention).
func (p *PartitionStore) SaveTimeIndex(seg *segment.Segment, batches []batching.MessagesBatch) error {
	file, err := os.OpenFile(seg.TimeIndexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("open time index: %w", err)
	}
	defer p.closeLogging(file, seg.TimeIndexPath)

	buf := make([]byte, 0, len(batches)*timeIndexEntrySize)
	for _, b := range batches {
		messages, err := b.Unpack()
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			continue
		}
		last := messages[len(messages)-1]
		relativeOffset := uint32(last.Offset - seg.StartOffset)
		buf = binary.LittleEndian.AppendUint32(buf, relativeOffset)
		buf = binary.LittleEndian.AppendUint64(buf, last.Timestamp)
	}
	_, err = file.Write(buf)
	return err
}

// LoadMessages reads the byte range described by indexRange from the
// segment's log file and decodes every message in it.
func (p *PartitionStore) LoadMessages(seg *segment.Segment, indexRange segment.IndexRange) ([]message.Message, error) {
	file, err := os.Open(seg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer p.closeLogging(file, seg.LogPath)

	start := int64(indexRange.Start.Position)
	length := int64(indexRange.End.Position) - start
	if length <= 0 {
		return nil, nil
	}
	// The range's end position may lie past the persisted tail when it
	// covers offsets whose batch is still in the unsaved buffer; clamp to
	// the bytes actually on disk.
	buf := make([]byte, length)
	n, err := file.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read log: %w", err)
	}
	buf = buf[:n]

	return decodeAllMessages(buf)
}

func decodeAllMessages(buf []byte) ([]message.Message, error) {
	out := make([]message.Message, 0)
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
		out = append(out, messages...)
		pos += n
	}
	return out, nil
}

// LoadNewestMessagesBySize reads the whole log file and returns the
// newest suffix whose cumulative encoded size is at least sizeBytes.
func (p *PartitionStore) LoadNewestMessagesBySize(seg *segment.Segment, sizeBytes uint64) ([]message.Message, error) {
	buf, err := os.ReadFile(seg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}
	all, err := decodeAllMessages(buf)
	if err != nil {
		return nil, err
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

// readIndexEntries reads every 8-byte entry of an on-disk index file.
// A missing file reads as an empty index.
func readIndexEntries(path string) ([]segment.Index, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(buf)%indexEntrySize != 0 {
		return nil, brokerr.InvalidCommand("index file: truncated entry")
	}
	entries := make([]segment.Index, len(buf)/indexEntrySize)
	for i := range entries {
		off := i * indexEntrySize
		entries[i] = segment.Index{
			RelativeOffset: binary.LittleEndian.Uint32(buf[off:]),
			Position:       binary.LittleEndian.Uint32(buf[off+4:]),
		}
	}
	return entries, nil
}

// readTimeIndexEntries reads every 12-byte entry of an on-disk time index
// file. A missing file reads as an empty index.
func readTimeIndexEntries(path string) ([]segment.TimeIndex, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read time index: %w", err)
	}
	if len(buf)%timeIndexEntrySize != 0 {
		return nil, brokerr.InvalidCommand("time index file: truncated entry")
	}
	entries := make([]segment.TimeIndex, len(buf)/timeIndexEntrySize)
	for i := range entries {
		off := i * timeIndexEntrySize
		entries[i] = segment.TimeIndex{
			RelativeOffset: binary.LittleEndian.Uint32(buf[off:]),
			Timestamp:      binary.LittleEndian.Uint64(buf[off+4:]),
		}
	}
	return entries, nil
}

// LoadIndexRange reads the segment's on-disk index file and resolves the
// byte range covering [startOffset, endOffset], used when the segment's
// in-memory index is absent (e.g. right after a restart, before reload).
func (p *PartitionStore) LoadIndexRange(seg *segment.Segment, baseOffset, startOffset, endOffset uint64) (*segment.IndexRange, error) {
	entries, err := readIndexEntries(seg.IndexPath)
	if err != nil {
		return nil, err
	}
	count := len(entries)
	if count == 0 {
		return nil, nil
	}

	relativeStart := uint32(startOffset - baseOffset)
	relativeEnd := uint32(endOffset - baseOffset)

	startIdx := sort.Search(count, func(i int) bool { return entries[i].RelativeOffset >= relativeStart })
	if startIdx == count {
		return nil, nil
	}
	endIdx := sort.Search(count, func(i int) bool { return entries[i].RelativeOffset >= relativeEnd })

	startPosition := entries[startIdx].Position
	var endPosition uint32
	if endIdx+1 < count {
		endPosition = entries[endIdx+1].Position
	} else {
		info, err := os.Stat(seg.LogPath)
		if err != nil {
			return nil, fmt.Errorf("stat log: %w", err)
		}
		endPosition = uint32(info.Size())
	}

	return &segment.IndexRange{
		Start: segment.Index{RelativeOffset: relativeStart, Position: startPosition},
		End:   segment.Index{RelativeOffset: relativeEnd, Position: endPosition},
	}, nil
}

// Delete removes a closed segment's log, index, and time-index files.
// Missing files are not an error: a segment created with indexing
// disabled never wrote one.
func (p *PartitionStore) Delete(seg *segment.Segment) error {
	for _, path := range []string{seg.LogPath, seg.IndexPath, seg.TimeIndexPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return brokerr.ErrIo(err)
		}
	}
	return nil
}

func (p *PartitionStore) consumerOffsetPath(kind partition.ConsumerKind, consumerID uint32) string {
	sub := "consumer"
	if kind == partition.KindConsumerGroup {
		sub = "group"
	}
	return filepath.Join(p.dir, "offsets", sub, strconv.FormatUint(uint64(consumerID), 10))
}

// SaveConsumerOffset writes a single 8-byte little-endian offset record.
func (p *PartitionStore) SaveConsumerOffset(offset partition.ConsumerOffset) error {
	path := p.consumerOffsetPath(offset.Kind, offset.ConsumerID)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], offset.Offset)
	return os.WriteFile(path, buf[:], 0640)
}

// LoadConsumerOffsets reads every persisted offset record of the given
// kind for this partition.
func (p *PartitionStore) LoadConsumerOffsets(kind partition.ConsumerKind, streamID, topicID, partitionID uint32) ([]partition.ConsumerOffset, error) {
	sub := "consumer"
	if kind == partition.KindConsumerGroup {
		sub = "group"
	}
	dir := filepath.Join(p.dir, "offsets", sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read offsets dir: %w", err)
	}

	out := make([]partition.ConsumerOffset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		consumerID, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read offset file: %w", err)
		}
		if len(buf) != 8 {
			continue
		}
		out = append(out, partition.ConsumerOffset{
			Kind:        kind,
			ConsumerID:  uint32(consumerID),
			Offset:      binary.LittleEndian.Uint64(buf),
			StreamID:    streamID,
			TopicID:     topicID,
			PartitionID: partitionID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsumerID < out[j].ConsumerID })
	return out, nil
}
