package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/identifier"
)

func TestCreatePartitionsRoundTrip(t *testing.T) {
	cmd := CreatePartitions{
		StreamID:        identifier.Numeric(1),
		TopicID:         identifier.Numeric(2),
		PartitionsCount: 10,
	}
	decoded, err := CreatePartitionsFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)

	text, err := ParseCreatePartitions(cmd.String())
	require.NoError(t, err)
	assert.Equal(t, cmd, text)
}

func TestCreatePartitionsBoundsRejected(t *testing.T) {
	_, err := ParseCreatePartitions("1|2|0")
	assert.Error(t, err)
	_, err = ParseCreatePartitions("1|2|100001")
	assert.Error(t, err)
}
