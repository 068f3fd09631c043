package broker

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/command"
	"github.com/flowforge/streambroker/internal/consumer"
	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
	"github.com/flowforge/streambroker/internal/wire"
)

func TestDispatchCreateStreamReturnsAssignedID(t *testing.T) {
	b := newTestBroker(t)
	payload, err := b.Dispatch(wire.Request{
		Code:    wire.CodeCreateStream,
		Payload: command.CreateStream{Name: "orders"}.AsBytes(),
	})
	require.NoError(t, err)
	require.Len(t, payload, 4)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(payload))
}

func TestDispatchSendThenPollRoundTrips(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.Dispatch(wire.Request{Code: wire.CodeCreateStream, Payload: command.CreateStream{Name: "orders"}.AsBytes()})
	require.NoError(t, err)

	streamID := identifier.Numeric(1)

	_, err = b.Dispatch(wire.Request{
		Code: wire.CodeCreateTopic,
		Payload: command.CreateTopic{
			StreamID:        streamID,
			Name:            "events",
			PartitionsCount: 1,
		}.AsBytes(),
	})
	require.NoError(t, err)

	topicID := identifier.Numeric(1)

	sendPayload := command.SendMessages{
		StreamID:     streamID,
		TopicID:      topicID,
		Partitioning: partition.Balanced(),
		Messages:     []message.Message{message.New(message.NewID(), 0, nil, []byte("hi"))},
	}.AsBytes()
	_, err = b.Dispatch(wire.Request{Code: wire.CodeSendMessages, Payload: sendPayload})
	require.NoError(t, err)

	pollPayload := command.PollMessages{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: 1,
		Consumer:    consumer.Individual(1),
		Strategy:    command.PollFirst(),
		Count:       10,
	}.AsBytes()
	resp, err := b.Dispatch(wire.Request{Code: wire.CodePollMessages, Payload: pollPayload})
	require.NoError(t, err)

	count := binary.LittleEndian.Uint32(resp)
	assert.Equal(t, uint32(1), count)
}

func TestDispatchUnknownCodeIsInvalidCommand(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.Dispatch(wire.Request{Code: wire.Code(999), Payload: nil})
	require.Error(t, err)
}
