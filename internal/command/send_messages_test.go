package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
)

func sampleSendMessages(t *testing.T) SendMessages {
	t.Helper()
	return SendMessages{
		StreamID:     identifier.Numeric(1),
		TopicID:      identifier.Numeric(2),
		Partitioning: partition.Balanced(),
		Messages: []message.Message{
			message.New(message.NewID(), 1000, nil, []byte("one")),
			message.New(message.NewID(), 1001, message.Headers{"k": message.NewStringHeader("v")}, []byte("two")),
		},
	}
}

func TestSendMessagesRoundTrip(t *testing.T) {
	cmd := sampleSendMessages(t)
	decoded, err := SendMessagesFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd.StreamID, decoded.StreamID)
	assert.Equal(t, cmd.TopicID, decoded.TopicID)
	assert.Equal(t, cmd.Partitioning, decoded.Partitioning)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, cmd.Messages[0].Payload, decoded.Messages[0].Payload)
	assert.True(t, message.HeadersEqual(cmd.Messages[1].Headers, decoded.Messages[1].Headers))
}

func TestSendMessagesRejectsEmptyBatch(t *testing.T) {
	cmd := SendMessages{
		StreamID:     identifier.Numeric(1),
		TopicID:      identifier.Numeric(2),
		Partitioning: partition.Balanced(),
	}
	assert.Error(t, cmd.Validate())
}

func TestSendMessagesRejectsLengthMismatch(t *testing.T) {
	m := message.New(message.NewID(), 1, nil, []byte("abc"))
	m.Length = 99
	cmd := SendMessages{
		StreamID:     identifier.Numeric(1),
		TopicID:      identifier.Numeric(2),
		Partitioning: partition.Balanced(),
		Messages:     []message.Message{m},
	}
	assert.Error(t, cmd.Validate())
}

func TestParsePartitioningSelector(t *testing.T) {
	p, err := ParsePartitioningSelector("balanced")
	require.NoError(t, err)
	assert.Equal(t, partition.PartitioningBalanced, p.Kind)

	p, err = ParsePartitioningSelector("id:7")
	require.NoError(t, err)
	assert.Equal(t, partition.PartitioningPartitionID, p.Kind)

	p, err = ParsePartitioningSelector("key:shard-a")
	require.NoError(t, err)
	assert.Equal(t, partition.PartitioningMessagesKey, p.Kind)

	_, err = ParsePartitioningSelector("bogus")
	assert.Error(t, err)
}
