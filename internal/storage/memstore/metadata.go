package memstore

import (
	"sync"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/storage"
)

// MetadataStore is an in-memory double of stream/topic metadata storage.
type MetadataStore struct {
	mu      sync.RWMutex
	streams map[uint32]storage.StreamRecord
	topics  map[uint32]map[uint32]storage.TopicRecord
}

// NewMetadataStore returns an empty metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		streams: make(map[uint32]storage.StreamRecord),
		topics:  make(map[uint32]map[uint32]storage.TopicRecord),
	}
}

func (m *MetadataStore) resolveStreamID(id identifier.Identifier) (uint32, bool) {
	if id.IsNumeric() {
		_, ok := m.streams[id.NumericValue()]
		return id.NumericValue(), ok
	}
	for sid, r := range m.streams {
		if r.Name == id.TextValue() {
			return sid, true
		}
	}
	return 0, false
}

func (m *MetadataStore) SaveStream(record storage.StreamRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[record.ID] = record
	if _, ok := m.topics[record.ID]; !ok {
		m.topics[record.ID] = make(map[uint32]storage.TopicRecord)
	}
	return nil
}

func (m *MetadataStore) LoadStream(id identifier.Identifier) (storage.StreamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sid, ok := m.resolveStreamID(id)
	if !ok {
		return storage.StreamRecord{}, brokerr.ErrNotFound(brokerr.NotFoundStream, id.String())
	}
	return m.streams[sid], nil
}

func (m *MetadataStore) LoadStreams() ([]storage.StreamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]storage.StreamRecord, 0, len(m.streams))
	for _, r := range m.streams {
		out = append(out, r)
	}
	return out, nil
}

func (m *MetadataStore) DeleteStream(id identifier.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.resolveStreamID(id)
	if !ok {
		return brokerr.ErrNotFound(brokerr.NotFoundStream, id.String())
	}
	delete(m.streams, sid)
	delete(m.topics, sid)
	return nil
}

func (m *MetadataStore) resolveTopicID(streamID uint32, id identifier.Identifier) (uint32, bool) {
	topics := m.topics[streamID]
	if id.IsNumeric() {
		_, ok := topics[id.NumericValue()]
		return id.NumericValue(), ok
	}
	for tid, r := range topics {
		if r.Name == id.TextValue() {
			return tid, true
		}
	}
	return 0, false
}

func (m *MetadataStore) SaveTopic(record storage.TopicRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[record.StreamID]; !ok {
		m.topics[record.StreamID] = make(map[uint32]storage.TopicRecord)
	}
	m.topics[record.StreamID][record.ID] = record
	return nil
}

func (m *MetadataStore) LoadTopic(streamID uint32, id identifier.Identifier) (storage.TopicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tid, ok := m.resolveTopicID(streamID, id)
	if !ok {
		return storage.TopicRecord{}, brokerr.ErrNotFound(brokerr.NotFoundTopic, id.String())
	}
	return m.topics[streamID][tid], nil
}

func (m *MetadataStore) LoadTopics(streamID uint32) ([]storage.TopicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topics := m.topics[streamID]
	out := make([]storage.TopicRecord, 0, len(topics))
	for _, r := range topics {
		out = append(out, r)
	}
	return out, nil
}

func (m *MetadataStore) DeleteTopic(streamID uint32, id identifier.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid, ok := m.resolveTopicID(streamID, id)
	if !ok {
		return brokerr.ErrNotFound(brokerr.NotFoundTopic, id.String())
	}
	delete(m.topics[streamID], tid)
	return nil
}
