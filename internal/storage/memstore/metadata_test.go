package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/storage"
)

func TestMetadataStoreStreamRoundTrip(t *testing.T) {
	m := NewMetadataStore()
	require.NoError(t, m.SaveStream(storage.StreamRecord{ID: 1, Name: "orders"}))

	byID, err := m.LoadStream(identifier.Numeric(1))
	require.NoError(t, err)
	assert.Equal(t, "orders", byID.Name)

	textID, err := identifier.String("orders")
	require.NoError(t, err)
	byName, err := m.LoadStream(textID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), byName.ID)

	require.NoError(t, m.DeleteStream(identifier.Numeric(1)))
	_, err = m.LoadStream(identifier.Numeric(1))
	assert.Error(t, err)
}

func TestMetadataStoreTopicRoundTrip(t *testing.T) {
	m := NewMetadataStore()
	require.NoError(t, m.SaveStream(storage.StreamRecord{ID: 1, Name: "orders"}))
	require.NoError(t, m.SaveTopic(storage.TopicRecord{ID: 5, StreamID: 1, Name: "events", PartitionsCount: 3}))

	byID, err := m.LoadTopic(1, identifier.Numeric(5))
	require.NoError(t, err)
	assert.Equal(t, "events", byID.Name)

	topics, err := m.LoadTopics(1)
	require.NoError(t, err)
	assert.Len(t, topics, 1)

	require.NoError(t, m.DeleteTopic(1, identifier.Numeric(5)))
	_, err = m.LoadTopic(1, identifier.Numeric(5))
	assert.Error(t, err)
}

func TestDeleteStreamCascadesTopics(t *testing.T) {
	m := NewMetadataStore()
	require.NoError(t, m.SaveStream(storage.StreamRecord{ID: 1, Name: "orders"}))
	require.NoError(t, m.SaveTopic(storage.TopicRecord{ID: 5, StreamID: 1, Name: "events"}))

	require.NoError(t, m.DeleteStream(identifier.Numeric(1)))
	topics, err := m.LoadTopics(1)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestMetadataStoreLoadMissingStreamFails(t *testing.T) {
	m := NewMetadataStore()
	_, err := m.LoadStream(identifier.Numeric(99))
	assert.Error(t, err)
}
