package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/identifier"
)

func TestDeletePartitionsFraming(t *testing.T) {
	input := []byte{0x02, 0x01, 0x01, 0x02, 0x01, 0x02, 0x03, 0x00, 0x00, 0x00}

	cmd, err := DeletePartitionsFromBytes(input)
	require.NoError(t, err)
	assert.Equal(t, identifier.Numeric(1), cmd.StreamID)
	assert.Equal(t, identifier.Numeric(2), cmd.TopicID)
	assert.Equal(t, uint32(3), cmd.PartitionsCount)

	fromText, err := ParseDeletePartitions("1|2|3")
	require.NoError(t, err)
	assert.Equal(t, cmd, fromText)
}

func TestDeletePartitionsBoundsRejected(t *testing.T) {
	_, err := ParseDeletePartitions("1|2|0")
	assert.Error(t, err)

	_, err = ParseDeletePartitions("1|2|100001")
	assert.Error(t, err)
}

func TestDeletePartitionsRoundTrip(t *testing.T) {
	cmd := DeletePartitions{
		StreamID:        identifier.Numeric(5),
		TopicID:         identifier.Numeric(9),
		PartitionsCount: 42,
	}
	decoded, err := DeletePartitionsFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)

	text, err := ParseDeletePartitions(cmd.String())
	require.NoError(t, err)
	assert.Equal(t, cmd, text)
}

func TestDeletePartitionsFromBytesRejectsShortBuffer(t *testing.T) {
	_, err := DeletePartitionsFromBytes(make([]byte, 9))
	assert.Error(t, err)
}
