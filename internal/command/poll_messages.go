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

// MaxPollCount bounds how many messages a single PollMessages command may
// request.
const MaxPollCount = 1000

// PollingKind selects how PollMessages resolves its starting offset.
type PollingKind byte

const (
	PollingOffset    PollingKind = 1
	PollingTimestamp PollingKind = 2
	PollingFirst     PollingKind = 3
	PollingLast      PollingKind = 4
	PollingNext      PollingKind = 5
)

func (k PollingKind) String() string {
	switch k {
	case PollingOffset:
		return "offset"
	case PollingTimestamp:
		return "timestamp"
	case PollingFirst:
		return "first"
	case PollingLast:
		return "last"
	case PollingNext:
		return "next"
	default:
		return "unknown"
	}
}

// PollingStrategy carries the resolution kind and, for Offset/Timestamp,
// its 8-byte little-endian value.
type PollingStrategy struct {
	Kind  PollingKind
	Value uint64
}

func PollByOffset(offset uint64) PollingStrategy {
	return PollingStrategy{Kind: PollingOffset, Value: offset}
}

func PollByTimestamp(ts uint64) PollingStrategy {
	return PollingStrategy{Kind: PollingTimestamp, Value: ts}
}

func PollFirst() PollingStrategy { return PollingStrategy{Kind: PollingFirst} }
func PollLast() PollingStrategy  { return PollingStrategy{Kind: PollingLast} }
func PollNext() PollingStrategy  { return PollingStrategy{Kind: PollingNext} }

func (s PollingStrategy) Validate() error {
	switch s.Kind {
	case PollingOffset, PollingTimestamp, PollingFirst, PollingLast, PollingNext:
		return nil
	default:
		return brokerr.InvalidCommand("polling_strategy: unknown kind")
	}
}

// AsBytes encodes the strategy as kind(1) + value(8, little-endian). The
// value is unused (but still written as zero) for First/Last/Next.
func (s PollingStrategy) AsBytes() []byte {
	buf := make([]byte, 9)
	buf[0] = byte(s.Kind)
	binary.LittleEndian.PutUint64(buf[1:], s.Value)
	return buf
}

// PollingStrategyFromBytes decodes a PollingStrategy from the front of b.
func PollingStrategyFromBytes(b []byte) (PollingStrategy, int, error) {
	if len(b) < 9 {
		return PollingStrategy{}, 0, brokerr.InvalidCommand("polling_strategy: buffer shorter than minimal framing")
	}
	s := PollingStrategy{Kind: PollingKind(b[0]), Value: binary.LittleEndian.Uint64(b[1:9])}
	if err := s.Validate(); err != nil {
		return PollingStrategy{}, 0, err
	}
	return s, 9, nil
}

func (s PollingStrategy) String() string {
	switch s.Kind {
	case PollingOffset:
		return fmt.Sprintf("offset:%d", s.Value)
	case PollingTimestamp:
		return fmt.Sprintf("timestamp:%d", s.Value)
	default:
		return s.Kind.String()
	}
}

// ParsePollingStrategy parses the textual form produced by String.
func ParsePollingStrategy(s string) (PollingStrategy, error) {
	switch {
	case s == "first":
		return PollFirst(), nil
	case s == "last":
		return PollLast(), nil
	case s == "next":
		return PollNext(), nil
	case strings.HasPrefix(s, "offset:"):
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "offset:"), 10, 64)
		if err != nil {
			return PollingStrategy{}, brokerr.InvalidCommand("polling_strategy: invalid offset value")
		}
		return PollByOffset(v), nil
	case strings.HasPrefix(s, "timestamp:"):
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "timestamp:"), 10, 64)
		if err != nil {
			return PollingStrategy{}, brokerr.InvalidCommand("polling_strategy: invalid timestamp value")
		}
		return PollByTimestamp(v), nil
	default:
		return PollingStrategy{}, brokerr.InvalidCommand("polling_strategy: unrecognized form")
	}
}

// PollMessages retrieves up to Count messages from one partition of a
// topic, resolved via Strategy. AutoCommit, when set, advances the
// issuing consumer's stored offset to the last message returned.
type PollMessages struct {
	StreamID    identifier.Identifier
	TopicID     identifier.Identifier
	PartitionID uint32
	Consumer    consumer.Consumer
	Strategy    PollingStrategy
	Count       uint32
	AutoCommit  bool
}

func (c PollMessages) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.Count < 1 || c.Count > MaxPollCount {
		return brokerr.InvalidCommand(fmt.Sprintf("poll_messages: count must be within [1, %d]", MaxPollCount))
	}
	return nil
}

func (c PollMessages) AsBytes() []byte {
	buf := c.StreamID.AsBytes()
	buf = append(buf, c.TopicID.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.PartitionID)
	buf = append(buf, c.Consumer.AsBytes()...)
	buf = append(buf, c.Strategy.AsBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, c.Count)
	if c.AutoCommit {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func PollMessagesFromBytes(b []byte) (PollMessages, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return PollMessages{}, err
	}
	pos := streamID.GetSizeBytes()

	topicID, err := identifier.FromBytes(b[pos:])
	if err != nil {
		return PollMessages{}, err
	}
	pos += topicID.GetSizeBytes()

	if len(b) < pos+4 {
		return PollMessages{}, brokerr.InvalidCommand("poll_messages: truncated partition_id")
	}
	partitionID := binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	cons, err := consumer.FromBytes(b[pos:])
	if err != nil {
		return PollMessages{}, err
	}
	pos += 5

	strategy, n, err := PollingStrategyFromBytes(b[pos:])
	if err != nil {
		return PollMessages{}, err
	}
	pos += n

	if len(b) < pos+4+1 {
		return PollMessages{}, brokerr.InvalidCommand("poll_messages: truncated framing")
	}
	count := binary.LittleEndian.Uint32(b[pos:])
	pos += 4
	autoCommit := b[pos] != 0

	cmd := PollMessages{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		Consumer:    cons,
		Strategy:    strategy,
		Count:       count,
		AutoCommit:  autoCommit,
	}
	if err := cmd.Validate(); err != nil {
		return PollMessages{}, err
	}
	return cmd, nil
}

func (c PollMessages) String() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%d|%t",
		c.StreamID, c.TopicID, c.PartitionID, c.Consumer, c.Strategy, c.Count, c.AutoCommit)
}

func ParsePollMessages(s string) (PollMessages, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 7 {
		return PollMessages{}, brokerr.InvalidCommand("poll_messages: expected 7 fields")
	}
	streamID, err := identifier.Parse(parts[0])
	if err != nil {
		return PollMessages{}, err
	}
	topicID, err := identifier.Parse(parts[1])
	if err != nil {
		return PollMessages{}, err
	}
	partitionID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return PollMessages{}, brokerr.InvalidCommand("poll_messages: invalid partition_id")
	}
	cons, err := consumer.Parse(parts[3])
	if err != nil {
		return PollMessages{}, err
	}
	strategy, err := ParsePollingStrategy(parts[4])
	if err != nil {
		return PollMessages{}, err
	}
	count, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return PollMessages{}, brokerr.InvalidCommand("poll_messages: invalid count")
	}
	autoCommit := parts[6] == "true"

	cmd := PollMessages{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: uint32(partitionID),
		Consumer:    cons,
		Strategy:    strategy,
		Count:       uint32(count),
		AutoCommit:  autoCommit,
	}
	if err := cmd.Validate(); err != nil {
		return PollMessages{}, err
	}
	return cmd, nil
}
