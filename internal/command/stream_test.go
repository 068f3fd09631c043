package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/identifier"
)

func TestCreateStreamRoundTrip(t *testing.T) {
	cmd := CreateStream{StreamID: 7, Name: "orders"}
	decoded, err := CreateStreamFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)

	text, err := ParseCreateStream(cmd.String())
	require.NoError(t, err)
	assert.Equal(t, cmd, text)
}

func TestCreateStreamRejectsEmptyName(t *testing.T) {
	_, err := ParseCreateStream("0|")
	assert.Error(t, err)
}

func TestDeleteStreamRoundTrip(t *testing.T) {
	cmd := DeleteStream{StreamID: identifier.Numeric(3)}
	decoded, err := DeleteStreamFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)

	text, err := ParseDeleteStream(cmd.String())
	require.NoError(t, err)
	assert.Equal(t, cmd, text)
}
