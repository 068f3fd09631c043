// Package broker is the thin engine that ties the streaming core
// (segment/partition/command/storage) together into a running server:
// a stream/topic/partition registry backed by filestore.MetadataStore,
// dispatching decoded wire commands into partition operations. It holds
// no business logic of its own beyond id resolution and routing.
package broker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/cache"
	"github.com/flowforge/streambroker/internal/command"
	"github.com/flowforge/streambroker/internal/config"
	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/metrics"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/retention"
	"github.com/flowforge/streambroker/internal/segment"
	"github.com/flowforge/streambroker/internal/storage"
	"github.com/flowforge/streambroker/internal/storage/filestore"
)

// liveTopic is the in-memory half of a topic record: its live partitions
// plus the balanced-partitioning round robin cursor.
type liveTopic struct {
	record     storage.TopicRecord
	partitions []*partition.Partition
	roundRobin uint32
}

type topicKey struct {
	streamID, topicID uint32
}

// Broker is the in-process registry of every stream, topic, and
// partition the server currently serves.
type Broker struct {
	basePath  string
	cfg       config.Config
	logger    *zap.Logger
	metadata  *filestore.MetadataStore
	readCache *cache.LRU

	expirySource func() time.Duration

	mu      sync.RWMutex
	streams map[uint32]storage.StreamRecord
	topics  map[topicKey]*liveTopic
}

// Open loads every persisted stream/topic/partition under basePath and
// returns a Broker ready to serve requests.
func Open(basePath string, cfg config.Config, logger *zap.Logger) (*Broker, error) {
	b := &Broker{
		basePath:  basePath,
		cfg:       cfg,
		logger:    logger,
		metadata:  filestore.NewMetadataStore(basePath),
		readCache: cache.NewLRU(cfg.Cache.SizeBytes),
		streams:   make(map[uint32]storage.StreamRecord),
		topics:    make(map[topicKey]*liveTopic),
	}

	streams, err := b.metadata.LoadStreams()
	if err != nil {
		return nil, err
	}
	for _, sr := range streams {
		b.streams[sr.ID] = sr

		topics, err := b.metadata.LoadTopics(sr.ID)
		if err != nil {
			return nil, err
		}
		for _, tr := range topics {
			lt := &liveTopic{record: tr}
			for pid := uint32(1); pid <= tr.PartitionsCount; pid++ {
				p, err := b.openPartition(sr.ID, tr.ID, pid, tr.MessageExpiry)
				if err != nil {
					return nil, err
				}
				lt.partitions = append(lt.partitions, p)
			}
			b.topics[topicKey{sr.ID, tr.ID}] = lt
		}
	}
	return b, nil
}

// SetRetentionExpirySource overrides where segmentConfig reads the
// server-wide message expiry from, letting a config watcher feed a
// hot-reloaded value to topics and partitions created after startup.
func (b *Broker) SetRetentionExpirySource(source func() time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expirySource = source
}

func (b *Broker) segmentConfig(messageExpiry time.Duration) segment.Config {
	if messageExpiry == 0 {
		messageExpiry = b.cfg.RetentionPolicy.MessageExpiry
		if b.expirySource != nil {
			messageExpiry = b.expirySource()
		}
	}
	return segment.Config{
		MaxSizeBytes:       b.cfg.Segment.SizeBytes,
		MessageExpiry:      messageExpiry,
		IndexesEnabled:     b.cfg.Segment.IndexesEnabled,
		TimeIndexesEnabled: b.cfg.Segment.TimeIndexesEnabled,
	}
}

func (b *Broker) openPartition(streamID, topicID, partitionID uint32, messageExpiry time.Duration) (*partition.Partition, error) {
	store, err := filestore.Open(b.basePath, streamID, topicID, partitionID, b.logger)
	if err != nil {
		return nil, brokerr.ErrIo(err)
	}
	segCfg := b.segmentConfig(messageExpiry)
	segments, err := store.LoadSegments(streamID, topicID, partitionID, segCfg)
	if err != nil {
		return nil, brokerr.ErrIo(err)
	}
	factory := store.NewSegmentFactory(streamID, topicID, partitionID, segCfg)
	p := partition.Load(streamID, topicID, partitionID, segments, factory, store)
	if err := p.LoadConsumerOffsets(); err != nil {
		return nil, err
	}
	p.SetCache(b.readCache)
	if b.cfg.Backpressure.WatermarkBytes > 0 {
		limiter := rate.NewLimiter(rate.Limit(b.cfg.Backpressure.RatePerSecond), b.cfg.Backpressure.Burst)
		p.SetBackpressure(b.cfg.Backpressure.WatermarkBytes, limiter)
	}
	return p, nil
}

func nextID(used map[uint32]bool) uint32 {
	var id uint32 = 1
	for used[id] {
		id++
	}
	return id
}

// CreateStream registers a new stream, assigning a numeric id when c.StreamID
// is zero.
func (b *Broker) CreateStream(c command.CreateStream) (storage.StreamRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := c.StreamID
	if id == 0 {
		used := make(map[uint32]bool, len(b.streams))
		for sid := range b.streams {
			used[sid] = true
		}
		id = nextID(used)
	} else if _, exists := b.streams[id]; exists {
		return storage.StreamRecord{}, brokerr.InvalidCommand("create_stream: stream id already exists")
	}

	record := storage.StreamRecord{ID: id, Name: c.Name}
	if err := b.metadata.SaveStream(record); err != nil {
		return storage.StreamRecord{}, err
	}
	b.streams[id] = record
	return record, nil
}

// DeleteStream removes a stream and every topic/partition beneath it.
func (b *Broker) DeleteStream(streamID identifier.Identifier) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, err := b.metadata.LoadStream(streamID)
	if err != nil {
		return err
	}
	if err := b.metadata.DeleteStream(streamID); err != nil {
		return err
	}
	delete(b.streams, record.ID)
	for key := range b.topics {
		if key.streamID == record.ID {
			delete(b.topics, key)
		}
	}
	return nil
}

// CreateTopic registers a new topic under streamID with c.PartitionsCount
// freshly created, empty partitions.
func (b *Broker) CreateTopic(c command.CreateTopic) (storage.TopicRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	streamRecord, err := b.metadata.LoadStream(c.StreamID)
	if err != nil {
		return storage.TopicRecord{}, err
	}

	id := c.TopicID
	if id == 0 {
		existing, err := b.metadata.LoadTopics(streamRecord.ID)
		if err != nil {
			return storage.TopicRecord{}, err
		}
		used := make(map[uint32]bool, len(existing))
		for _, tr := range existing {
			used[tr.ID] = true
		}
		id = nextID(used)
	}

	record := storage.TopicRecord{
		ID:              id,
		StreamID:        streamRecord.ID,
		Name:            c.Name,
		PartitionsCount: c.PartitionsCount,
	}
	if err := b.metadata.SaveTopic(record); err != nil {
		return storage.TopicRecord{}, err
	}

	lt := &liveTopic{record: record}
	for pid := uint32(1); pid <= c.PartitionsCount; pid++ {
		p, err := b.openPartition(streamRecord.ID, id, pid, c.MessageExpiry)
		if err != nil {
			return storage.TopicRecord{}, err
		}
		lt.partitions = append(lt.partitions, p)
	}
	b.topics[topicKey{streamRecord.ID, id}] = lt

	return record, nil
}

// DeleteTopic removes a topic and every partition beneath it.
func (b *Broker) DeleteTopic(streamID, topicID identifier.Identifier) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	streamRecord, err := b.metadata.LoadStream(streamID)
	if err != nil {
		return err
	}
	topicRecord, err := b.metadata.LoadTopic(streamRecord.ID, topicID)
	if err != nil {
		return err
	}
	if err := b.metadata.DeleteTopic(streamRecord.ID, topicID); err != nil {
		return err
	}
	delete(b.topics, topicKey{streamRecord.ID, topicRecord.ID})
	return nil
}

// CreatePartitions appends c.PartitionsCount new, empty partitions to an
// existing topic.
func (b *Broker) CreatePartitions(c command.CreatePartitions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	lt, key, err := b.resolveTopicLocked(c.StreamID, c.TopicID)
	if err != nil {
		return err
	}

	start := lt.record.PartitionsCount + 1
	for pid := start; pid < start+c.PartitionsCount; pid++ {
		p, err := b.openPartition(key.streamID, key.topicID, pid, lt.record.MessageExpiry)
		if err != nil {
			return err
		}
		lt.partitions = append(lt.partitions, p)
	}
	lt.record.PartitionsCount += c.PartitionsCount
	return b.metadata.SaveTopic(lt.record)
}

// DeletePartitions removes the trailing c.PartitionsCount partitions of a
// topic, deleting their on-disk segments.
func (b *Broker) DeletePartitions(c command.DeletePartitions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	lt, _, err := b.resolveTopicLocked(c.StreamID, c.TopicID)
	if err != nil {
		return err
	}
	if c.PartitionsCount >= lt.record.PartitionsCount {
		return brokerr.InvalidCommand("delete_partitions: cannot remove every partition of a topic")
	}

	keep := lt.record.PartitionsCount - c.PartitionsCount
	for _, p := range lt.partitions[keep:] {
		for _, seg := range p.Segments() {
			seg.Close()
			if err := seg.Delete(); err != nil {
				return err
			}
		}
	}
	lt.partitions = lt.partitions[:keep]
	lt.record.PartitionsCount = keep
	return b.metadata.SaveTopic(lt.record)
}

func (b *Broker) resolveTopicLocked(streamID, topicID identifier.Identifier) (*liveTopic, topicKey, error) {
	streamRecord, err := b.metadata.LoadStream(streamID)
	if err != nil {
		return nil, topicKey{}, err
	}
	topicRecord, err := b.metadata.LoadTopic(streamRecord.ID, topicID)
	if err != nil {
		return nil, topicKey{}, err
	}
	key := topicKey{streamRecord.ID, topicRecord.ID}
	lt, ok := b.topics[key]
	if !ok {
		return nil, topicKey{}, brokerr.ErrNotFound(brokerr.NotFoundTopic, topicID.String())
	}
	return lt, key, nil
}

func (b *Broker) resolveTopic(streamID, topicID identifier.Identifier) (*liveTopic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lt, _, err := b.resolveTopicLocked(streamID, topicID)
	return lt, err
}

func (b *Broker) partitionOf(lt *liveTopic, partitionID uint32) (*partition.Partition, error) {
	if partitionID < 1 || int(partitionID) > len(lt.partitions) {
		return nil, brokerr.ErrNotFound(brokerr.NotFoundPartition, lt.record.Name)
	}
	return lt.partitions[partitionID-1], nil
}

// SendMessages resolves the target partition via c.Partitioning and
// appends c.Messages to it, timestamping any message a producer left at
// zero.
func (b *Broker) SendMessages(c command.SendMessages) error {
	lt, err := b.resolveTopic(c.StreamID, c.TopicID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	partitionID, err := c.Partitioning.Resolve(lt.record.PartitionsCount, &lt.roundRobin)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	p, err := b.partitionOf(lt, partitionID)
	if err != nil {
		return err
	}

	now := uint64(time.Now().UnixMicro())
	for i := range c.Messages {
		if c.Messages[i].Timestamp == 0 {
			c.Messages[i].Timestamp = now
		}
	}

	collector := metrics.ForPartition(p.StreamID, p.TopicID, p.PartitionID)
	start := time.Now()
	if err := p.AppendMessages(c.Messages); err != nil {
		return err
	}
	collector.RecordAppend(len(c.Messages), time.Since(start))
	return nil
}

// PollMessages resolves the requested partition and strategy and returns
// up to c.Count messages, advancing the consumer's stored offset first
// when c.AutoCommit is set.
func (b *Broker) PollMessages(c command.PollMessages) ([]message.Message, error) {
	lt, err := b.resolveTopic(c.StreamID, c.TopicID)
	if err != nil {
		return nil, err
	}
	p, err := b.partitionOf(lt, c.PartitionID)
	if err != nil {
		return nil, err
	}

	var messages []message.Message
	switch c.Strategy.Kind {
	case command.PollingOffset:
		messages, err = p.GetMessagesByOffset(c.Strategy.Value, c.Count)
	case command.PollingTimestamp:
		messages, err = p.GetMessagesByTimestamp(c.Strategy.Value, c.Count)
	case command.PollingFirst:
		messages, err = p.GetFirstMessages(c.Count)
	case command.PollingLast:
		messages, err = p.GetLastMessages(c.Count)
	case command.PollingNext:
		messages, err = p.GetNextMessages(c.Consumer, c.Count)
	default:
		return nil, brokerr.InvalidCommand("poll_messages: unknown strategy")
	}
	if err != nil {
		return nil, err
	}

	metrics.ForPartition(p.StreamID, p.TopicID, p.PartitionID).RecordPoll(len(messages))

	if c.AutoCommit && len(messages) > 0 {
		last := messages[len(messages)-1].Offset
		if err := p.StoreConsumerOffset(c.Consumer, last); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// StoreConsumerOffset persists a consumer's progress cursor.
func (b *Broker) StoreConsumerOffset(c command.StoreConsumerOffset) error {
	lt, err := b.resolveTopic(c.StreamID, c.TopicID)
	if err != nil {
		return err
	}
	p, err := b.partitionOf(lt, c.PartitionID)
	if err != nil {
		return err
	}
	return p.StoreConsumerOffset(c.Consumer, c.Offset)
}

// GetConsumerOffset returns a consumer's stored progress cursor.
func (b *Broker) GetConsumerOffset(c command.GetConsumerOffset) (uint64, error) {
	lt, err := b.resolveTopic(c.StreamID, c.TopicID)
	if err != nil {
		return 0, err
	}
	p, err := b.partitionOf(lt, c.PartitionID)
	if err != nil {
		return 0, err
	}
	return p.GetConsumerOffset(c.Consumer), nil
}

// Sweepers returns every live partition as a retention.PartitionSweeper,
// the callback the retention cleaner re-queries on each tick.
func (b *Broker) Sweepers() []retention.PartitionSweeper {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]retention.PartitionSweeper, 0)
	for _, lt := range b.topics {
		for _, p := range lt.partitions {
			out = append(out, p)
		}
	}
	return out
}

// Flushers returns every live partition as a retention.PartitionFlusher,
// the callback the periodic saver re-queries on each tick.
func (b *Broker) Flushers() []retention.PartitionFlusher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]retention.PartitionFlusher, 0)
	for _, lt := range b.topics {
		for _, p := range lt.partitions {
			out = append(out, p)
		}
	}
	return out
}

// Ready is the monitoring server's readiness check. Open is fully
// synchronous, so a broker that exists is a broker that finished
// loading; this hook stays for the day that stops being true.
func (b *Broker) Ready() error {
	return nil
}

// StreamNames returns every stream's name sorted, used only for
// diagnostics at startup.
func (b *Broker) StreamNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.streams))
	for _, sr := range b.streams {
		names = append(names, sr.Name)
	}
	sort.Strings(names)
	return names
}
