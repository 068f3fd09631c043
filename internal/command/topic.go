package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
)

// CreateTopic creates a topic with partitions_count partitions and an
// optional per-topic message expiry overriding the server-wide
// retention_policy.message_expiry.
type CreateTopic struct {
	StreamID        identifier.Identifier
	TopicID         uint32 // 0 means "assign automatically"
	Name            string
	PartitionsCount uint32
	MessageExpiry   time.Duration // 0 means "use retention_policy.message_expiry"
}

func (c CreateTopic) Validate() error {
	if err := validateName("create_topic", c.Name); err != nil {
		return err
	}
	if c.PartitionsCount < 1 || c.PartitionsCount > MaxPartitionsCount {
		return brokerr.ErrTooManyPartitions(c.PartitionsCount)
	}
	return nil
}

func (c CreateTopic) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = binary.LittleEndian.AppendUint32(buf, c.TopicID)
	buf = append(buf, byte(len(c.Name)))
	buf = append(buf, c.Name...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionsCount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.MessageExpiry))
	return buf
}

func CreateTopicFromBytes(b []byte) (CreateTopic, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return CreateTopic{}, err
	}
	pos := streamID.GetSizeBytes()

	if len(b) < pos+4+1 {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: truncated framing")
	}
	topicID := binary.LittleEndian.Uint32(b[pos:])
	pos += 4
	nameLen := int(b[pos])
	pos++
	if len(b) < pos+nameLen+4+8 {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: truncated framing")
	}
	name := string(b[pos : pos+nameLen])
	pos += nameLen
	partitionsCount := binary.LittleEndian.Uint32(b[pos:])
	pos += 4
	messageExpiry := time.Duration(binary.LittleEndian.Uint64(b[pos:]))

	cmd := CreateTopic{
		StreamID:        streamID,
		TopicID:         topicID,
		Name:            name,
		PartitionsCount: partitionsCount,
		MessageExpiry:   messageExpiry,
	}
	if err := cmd.Validate(); err != nil {
		return CreateTopic{}, err
	}
	return cmd, nil
}

func (c CreateTopic) String() string {
	return fmt.Sprintf("%s|%d|%s|%d|%d", c.StreamID, c.TopicID, c.Name, c.PartitionsCount, c.MessageExpiry)
}

func ParseCreateTopic(s string) (CreateTopic, error) {
	parts := strings.SplitN(s, "|", 5)
	if len(parts) != 5 {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: expected 5 fields")
	}
	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return CreateTopic{}, err
	}
	topicID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: invalid topic_id")
	}
	partitionsCount, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: invalid partitions_count")
	}
	messageExpiry, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return CreateTopic{}, brokerr.InvalidCommand("create_topic: invalid message_expiry")
	}

	cmd := CreateTopic{
		StreamID:        streamID,
		TopicID:         uint32(topicID),
		Name:            parts[2],
		PartitionsCount: uint32(partitionsCount),
		MessageExpiry:   time.Duration(messageExpiry),
	}
	if err := cmd.Validate(); err != nil {
		return CreateTopic{}, err
	}
	return cmd, nil
}

// DeleteTopic removes a topic and every partition within it.
type DeleteTopic struct {
	StreamID identifier.Identifier
	TopicID  identifier.Identifier
}

func (c DeleteTopic) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	return buf
}

func DeleteTopicFromBytes(b []byte) (DeleteTopic, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return DeleteTopic{}, err
	}
	pos := streamID.GetSizeBytes()
	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return DeleteTopic{}, err
	}
	return DeleteTopic{StreamID: streamID, TopicID: topicID}, nil
}

func (c DeleteTopic) String() string {
	return fmt.Sprintf("%s|%s", c.StreamID, c.TopicID)
}

func ParseDeleteTopic(s string) (DeleteTopic, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 2 {
		return DeleteTopic{}, brokerr.InvalidCommand("delete_topic: expected 2 fields")
	}
	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return DeleteTopic{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return DeleteTopic{}, err
	}
	return DeleteTopic{StreamID: streamID, TopicID: topicID}, nil
}
