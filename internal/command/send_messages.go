package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
	"github.com/flowforge/streambroker/internal/message"
	"github.com/flowforge/streambroker/internal/partition"
)

// MaxMessagesPerBatch bounds how many messages a single SendMessages
// command may carry.
const MaxMessagesPerBatch = 1000

// SendMessages appends a batch of messages to a topic, routed to one of
// its partitions by Partitioning.
type SendMessages struct {
	StreamID     identifier.Identifier
	TopicID      identifier.Identifier
	Partitioning partition.Partitioning
	Messages     []message.Message
}

// Validate checks the batch is non-empty, within MaxMessagesPerBatch, and
// that every message's declared length matches its payload.
func (c SendMessages) Validate() error {
	if err := c.Partitioning.Validate(); err != nil {
		return err
	}
	if len(c.Messages) == 0 {
		return brokerr.InvalidCommand("send_messages: batch must not be empty")
	}
	if len(c.Messages) > MaxMessagesPerBatch {
		return brokerr.InvalidCommand(fmt.Sprintf("send_messages: batch exceeds %d messages", MaxMessagesPerBatch))
	}
	for i, m := range c.Messages {
		if int(m.Length) != len(m.Payload) {
			return brokerr.InvalidCommand(fmt.Sprintf("send_messages: message %d length does not match payload", i))
		}
	}
	return nil
}

// AsBytes encodes stream_id, topic_id, partitioning, a 4-byte message
// count, then each message in turn.
func (c SendMessages) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = append(buf, c.Partitioning.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Messages)))
	for _, m := range c.Messages {
		buf = m.AppendBytes(buf)
	}
	return buf
}

// SendMessagesFromBytes decodes and validates a SendMessages command.
func SendMessagesFromBytes(b []byte) (SendMessages, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return SendMessages{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return SendMessages{}, err
	}
	pos += topicID.GetSizeBytes()

	partitioning, n, err := partition.PartitioningFromBytes(b[pos:])
	if err != nil {
		return SendMessages{}, err
	}
	pos += n

	if len(b) < pos+4 {
		return SendMessages{}, brokerr.InvalidCommand("send_messages: truncated message count")
	}
	count := binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	messages := make([]message.Message, 0, count)
	for i := uint32(0); i < count; i++ {
		m, n, err := message.FromBytes(b[pos:])
		if err != nil {
			return SendMessages{}, err
		}
		messages = append(messages, m)
		pos += n
	}

	cmd := SendMessages{
		StreamID:     streamID,
		TopicID:      topicID,
		Partitioning: partitioning,
		Messages:     messages,
	}
	if err := cmd.Validate(); err != nil {
		return SendMessages{}, err
	}
	return cmd, nil
}

// String renders a compact textual form: payloads are summarized by count
// and total size rather than inlined, since they may be arbitrary binary.
func (c SendMessages) String() string {
	totalBytes := 0
	for _, m := range c.Messages {
		totalBytes += len(m.Payload)
	}
	return fmt.Sprintf("%s|%s|%s|%d messages, %d bytes",
		c.StreamID, c.TopicID, c.Partitioning.Kind, len(c.Messages), totalBytes)
}

// ParsePartitioningSelector builds a Partitioning from a CLI-friendly
// selector string: "balanced", "id:<n>", or "key:<value>".
func ParsePartitioningSelector(s string) (partition.Partitioning, error) {
	switch {
	case s == "balanced" || s == "":
		return partition.Balanced(), nil
	case strings.HasPrefix(s, "id:"):
		id, err := strconv.ParseUint(strings.TrimPrefix(s, "id:"), 10, 32)
		if err != nil {
			return partition.Partitioning{}, brokerr.InvalidCommand("send_messages: invalid partition id selector")
		}
		return partition.ByPartitionID(uint32(id)), nil
	case strings.HasPrefix(s, "key:"):
		return partition.ByMessagesKey([]byte(strings.TrimPrefix(s, "key:"))), nil
	default:
		return partition.Partitioning{}, brokerr.InvalidCommand("send_messages: unknown partitioning selector")
	}
}
