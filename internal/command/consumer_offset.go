package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/consumer"
	"github.com/flowforge/streambroker/internal/identifier"
)

// StoreConsumerOffset persists the given consumer's (or consumer group's)
// progress cursor for one partition.
type StoreConsumerOffset struct {
	StreamID    identifier.Identifier
	TopicID     identifier.Identifier
	PartitionID uint32
	Consumer    consumer.Consumer
	Offset      uint64
}

func (c StoreConsumerOffset) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionID)
	buf = append(buf, c.Consumer.AsBytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Offset)
	return buf
}

func StoreConsumerOffsetFromBytes(b []byte) (StoreConsumerOffset, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	pos += topicID.GetSizeBytes()

	if len(b) < pos+4 {
		return StoreConsumerOffset{}, brokerr.InvalidCommand("store_consumer_offset: truncated partition_id")
	}
	partitionID := binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	cons, err := consumer.FromBytes(b[pos:])
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	pos += 5

	if len(b) < pos+8 {
		return StoreConsumerOffset{}, brokerr.InvalidCommand("store_consumer_offset: truncated offset")
	}
	offset := binary.LittleEndian.Uint64(b[pos:])

	return StoreConsumerOffset{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		Consumer:    cons,
		Offset:      offset,
	}, nil
}

func (c StoreConsumerOffset) String() string {
	return fmt.Sprintf("%s|%s|%d|%s|%d", c.StreamID, c.TopicID, c.PartitionID, c.Consumer, c.Offset)
}

func ParseStoreConsumerOffset(s string) (StoreConsumerOffset, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 {
		return StoreConsumerOffset{}, brokerr.InvalidCommand("store_consumer_offset: expected 5 fields")
	}
	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	partitionID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return StoreConsumerOffset{}, brokerr.InvalidCommand("store_consumer_offset: invalid partition_id")
	}
	cons, err := consumer.Parse(parts[3])
	if err != nil {
		return StoreConsumerOffset{}, err
	}
	offset, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return StoreConsumerOffset{}, brokerr.InvalidCommand("store_consumer_offset: invalid offset")
	}
	return StoreConsumerOffset{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: uint32(partitionID),
		Consumer:    cons,
		Offset:      offset,
	}, nil
}

// GetConsumerOffset retrieves the given consumer's (or consumer group's)
// stored progress cursor for one partition.
type GetConsumerOffset struct {
	StreamID    identifier.Identifier
	TopicID     identifier.Identifier
	PartitionID uint32
	Consumer    consumer.Consumer
}

func (c GetConsumerOffset) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionID)
	buf = append(buf, c.Consumer.AsBytes()...)
	return buf
}

func GetConsumerOffsetFromBytes(b []byte) (GetConsumerOffset, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return GetConsumerOffset{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return GetConsumerOffset{}, err
	}
	pos += topicID.GetSizeBytes()

	if len(b) < pos+4 {
		return GetConsumerOffset{}, brokerr.InvalidCommand("get_consumer_offset: truncated partition_id")
	}
	partitionID := binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	cons, err := consumer.FromBytes(b[pos:])
	if err != nil {
		return GetConsumerOffset{}, err
	}

	return GetConsumerOffset{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		Consumer:    cons,
	}, nil
}

func (c GetConsumerOffset) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", c.StreamID, c.TopicID, c.PartitionID, c.Consumer)
}

func ParseGetConsumerOffset(s string) (GetConsumerOffset, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return GetConsumerOffset{}, brokerr.InvalidCommand("get_consumer_offset: expected 4 fields")
	}
	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return GetConsumerOffset{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return GetConsumerOffset{}, err
	}
	partitionID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return GetConsumerOffset{}, brokerr.InvalidCommand("get_consumer_offset: invalid partition_id")
	}
	cons, err := consumer.Parse(parts[3])
	if err != nil {
		return GetConsumerOffset{}, err
	}
	return GetConsumerOffset{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: uint32(partitionID),
		Consumer:    cons,
	}, nil
}
