// Package command implements the binary and textual codec for every
// control command the broker accepts: little-endian encode/decode plus a
// pipe-delimited textual form, with validation run on every decode.
package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
)

// MaxPartitionsCount bounds CreatePartitions/DeletePartitions.
const MaxPartitionsCount = 100000

// DeletePartitions removes the trailing N partitions of a topic.
type DeletePartitions struct {
	StreamID        identifier.Identifier
	TopicID         identifier.Identifier
	PartitionsCount uint32
}

// Validate checks partitions_count is within [1, 100000].
func (c DeletePartitions) Validate() error {
	if c.PartitionsCount < 1 || c.PartitionsCount > MaxPartitionsCount {
		return brokerr.ErrTooManyPartitions(c.PartitionsCount)
	}
	return nil
}

// AsBytes encodes stream_id, topic_id, then partitions_count.
func (c DeletePartitions) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionsCount)
	return buf
}

// DeletePartitionsFromBytes decodes and validates a DeletePartitions
// command. Requires at least 10 bytes: two minimal 3-byte identifiers
// plus the 4-byte count.
func DeletePartitionsFromBytes(b []byte) (DeletePartitions, error) {
	if len(b) < 10 {
		return DeletePartitions{}, brokerr.InvalidCommand("delete_partitions: buffer shorter than minimal framing")
	}

	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return DeletePartitions{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return DeletePartitions{}, err
	}
	pos += topicID.GetSizeBytes()

	if len(b) < pos+4 {
		return DeletePartitions{}, brokerr.InvalidCommand("delete_partitions: truncated partitions_count")
	}
	count := binary.LittleEndian.Uint32(b[pos:])

	cmd := DeletePartitions{StreamID: streamID, TopicID: topicID, PartitionsCount: count}
	if err := cmd.Validate(); err != nil {
		return DeletePartitions{}, err
	}
	return cmd, nil
}

// String renders the pipe-delimited textual form.
func (c DeletePartitions) String() string {
	return fmt.Sprintf("%s|%s|%d", c.StreamID, c.TopicID, c.PartitionsCount)
}

// ParseDeletePartitions reads the textual form produced by String.
func ParseDeletePartitions(s string) (DeletePartitions, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return DeletePartitions{}, brokerr.InvalidCommand("delete_partitions: expected 3 fields")
	}

	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return DeletePartitions{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return DeletePartitions{}, err
	}
	count, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return DeletePartitions{}, brokerr.InvalidCommand("delete_partitions: invalid partitions_count")
	}

	cmd := DeletePartitions{StreamID: streamID, TopicID: topicID, PartitionsCount: uint32(count)}
	if err := cmd.Validate(); err != nil {
		return DeletePartitions{}, err
	}
	return cmd, nil
}
