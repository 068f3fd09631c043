package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
)

// CreatePartitions appends N empty partitions to a topic.
type CreatePartitions struct {
	StreamID        identifier.Identifier
	TopicID         identifier.Identifier
	PartitionsCount uint32
}

func (c CreatePartitions) Validate() error {
	if c.PartitionsCount < 1 || c.PartitionsCount > MaxPartitionsCount {
		return brokerr.ErrTooManyPartitions(c.PartitionsCount)
	}
	return nil
}

func (c CreatePartitions) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionsCount)
	return buf
}

func CreatePartitionsFromBytes(b []byte) (CreatePartitions, error) {
	if len(b) < 10 {
		return CreatePartitions{}, brokerr.InvalidCommand("create_partitions: buffer shorter than minimal framing")
	}

	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return CreatePartitions{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return CreatePartitions{}, err
	}
	pos += topicID.GetSizeBytes()

	if len(b) < pos+4 {
		return CreatePartitions{}, brokerr.InvalidCommand("create_partitions: truncated partitions_count")
	}
	count := binary.LittleEndian.Uint32(b[pos:])

	cmd := CreatePartitions{StreamID: streamID, TopicID: topicID, PartitionsCount: count}
	if err := cmd.Validate(); err != nil {
		return CreatePartitions{}, err
	}
	return cmd, nil
}

func (c CreatePartitions) String() string {
	return fmt.Sprintf("%s|%s|%d", c.StreamID, c.TopicID, c.PartitionsCount)
}

func ParseCreatePartitions(s string) (CreatePartitions, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return CreatePartitions{}, brokerr.InvalidCommand("create_partitions: expected 3 fields")
	}

	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return CreatePartitions{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return CreatePartitions{}, err
	}
	count, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return CreatePartitions{}, brokerr.InvalidCommand("create_partitions: invalid partitions_count")
	}

	cmd := CreatePartitions{StreamID: streamID, TopicID: topicID, PartitionsCount: uint32(count)}
	if err := cmd.Validate(); err != nil {
		return CreatePartitions{}, err
	}
	return cmd, nil
}
