package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndividualAndGroupRoundTrip(t *testing.T) {
	c := Individual(7)
	b := c.AsBytes()
	assert.Equal(t, 5, len(b))

	decoded, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)

	g := Group(12)
	decoded, err = FromBytes(g.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, g, decoded)
}

func TestStringAndParse(t *testing.T) {
	c := Individual(3)
	assert.Equal(t, "c:3", c.String())

	parsed, err := Parse("c:3")
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	g := Group(99)
	assert.Equal(t, "g:99", g.String())

	parsed, err = Parse("g:99")
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("x")
	assert.Error(t, err)

	_, err = Parse("z:5")
	assert.Error(t, err)

	_, err = Parse("c:notanumber")
	assert.Error(t, err)
}

func TestFromBytesRejectsUnknownKind(t *testing.T) {
	_, err := FromBytes([]byte{9, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestFromBytesRejectsTruncated(t *testing.T) {
	_, err := FromBytes([]byte{1, 0, 0})
	assert.Error(t, err)
}
