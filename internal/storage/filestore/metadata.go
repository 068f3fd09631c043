package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/storage"
)

// MetadataStore persists stream and topic records as one YAML file per
// record under <basePath>/streams/<id>/stream.yaml and
// <basePath>/streams/<id>/topics/<id>/topic.yaml.
type MetadataStore struct {
	basePath string
}

// NewMetadataStore returns a metadata store rooted at basePath.
func NewMetadataStore(basePath string) *MetadataStore {
	return &MetadataStore{basePath: basePath}
}

func (m *MetadataStore) streamDir(streamID uint32) string {
	return filepath.Join(m.basePath, "streams", strconv.FormatUint(uint64(streamID), 10))
}

func (m *MetadataStore) streamPath(streamID uint32) string {
	return filepath.Join(m.streamDir(streamID), "stream.yaml")
}

func (m *MetadataStore) resolveStreamID(id identifier.Identifier) (uint32, bool) {
	if id.IsNumeric() {
		if _, err := os.Stat(m.streamPath(id.NumericValue())); err == nil {
			return id.NumericValue(), true
		}
		return id.NumericValue(), false
	}
	streams, err := m.LoadStreams()
	if err != nil {
		return 0, false
	}
	for _, r := range streams {
		if r.Name == id.TextValue() {
			return r.ID, true
		}
	}
	return 0, false
}

func (m *MetadataStore) SaveStream(record storage.StreamRecord) error {
	if err := os.MkdirAll(m.streamDir(record.ID), 0750); err != nil {
		return fmt.Errorf("create stream dir: %w", err)
	}
	buf, err := yaml.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(m.streamPath(record.ID), buf, 0640)
}

func (m *MetadataStore) LoadStream(id identifier.Identifier) (storage.StreamRecord, error) {
	sid, ok := m.resolveStreamID(id)
	if !ok {
		return storage.StreamRecord{}, brokerr.ErrNotFound(brokerr.NotFoundStream, id.String())
	}
	buf, err := os.ReadFile(m.streamPath(sid))
	if err != nil {
		return storage.StreamRecord{}, brokerr.ErrIo(err)
	}
	var record storage.StreamRecord
	if err := yaml.Unmarshal(buf, &record); err != nil {
		return storage.StreamRecord{}, brokerr.ErrIo(err)
	}
	return record, nil
}

func (m *MetadataStore) LoadStreams() ([]storage.StreamRecord, error) {
	dir := filepath.Join(m.basePath, "streams")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, brokerr.ErrIo(err)
	}
	out := make([]storage.StreamRecord, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(dir, e.Name(), "stream.yaml"))
		if err != nil {
			continue
		}
		var record storage.StreamRecord
		if err := yaml.Unmarshal(buf, &record); err != nil {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *MetadataStore) DeleteStream(id identifier.Identifier) error {
	sid, ok := m.resolveStreamID(id)
	if !ok {
		return brokerr.ErrNotFound(brokerr.NotFoundStream, id.String())
	}
	return os.RemoveAll(m.streamDir(sid))
}

func (m *MetadataStore) topicDir(streamID, topicID uint32) string {
	return filepath.Join(m.streamDir(streamID), "topics", strconv.FormatUint(uint64(topicID), 10))
}

func (m *MetadataStore) topicPath(streamID, topicID uint32) string {
	return filepath.Join(m.topicDir(streamID, topicID), "topic.yaml")
}

func (m *MetadataStore) resolveTopicID(streamID uint32, id identifier.Identifier) (uint32, bool) {
	if id.IsNumeric() {
		if _, err := os.Stat(m.topicPath(streamID, id.NumericValue())); err == nil {
			return id.NumericValue(), true
		}
		return id.NumericValue(), false
	}
	topics, err := m.LoadTopics(streamID)
	if err != nil {
		return 0, false
	}
	for _, r := range topics {
		if r.Name == id.TextValue() {
			return r.ID, true
		}
	}
	return 0, false
}

func (m *MetadataStore) SaveTopic(record storage.TopicRecord) error {
	if err := os.MkdirAll(m.topicDir(record.StreamID, record.ID), 0750); err != nil {
		return fmt.Errorf("create topic dir: %w", err)
	}
	buf, err := yaml.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(m.topicPath(record.StreamID, record.ID), buf, 0640)
}

func (m *MetadataStore) LoadTopic(streamID uint32, id identifier.Identifier) (storage.TopicRecord, error) {
	tid, ok := m.resolveTopicID(streamID, id)
	if !ok {
		return storage.TopicRecord{}, brokerr.ErrNotFound(brokerr.NotFoundTopic, id.String())
	}
	buf, err := os.ReadFile(m.topicPath(streamID, tid))
	if err != nil {
		return storage.TopicRecord{}, brokerr.ErrIo(err)
	}
	var record storage.TopicRecord
	if err := yaml.Unmarshal(buf, &record); err != nil {
		return storage.TopicRecord{}, brokerr.ErrIo(err)
	}
	return record, nil
}

func (m *MetadataStore) LoadTopics(streamID uint32) ([]storage.TopicRecord, error) {
	dir := filepath.Join(m.streamDir(streamID), "topics")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, brokerr.ErrIo(err)
	}
	out := make([]storage.TopicRecord, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(dir, e.Name(), "topic.yaml"))
		if err != nil {
			continue
		}
		var record storage.TopicRecord
		if err := yaml.Unmarshal(buf, &record); err != nil {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *MetadataStore) DeleteTopic(streamID uint32, id identifier.Identifier) error {
	tid, ok := m.resolveTopicID(streamID, id)
	if !ok {
		return brokerr.ErrNotFound(brokerr.NotFoundTopic, id.String())
	}
	return os.RemoveAll(m.topicDir(streamID, tid))
}
