package partition

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// PartitioningKind selects how SendMessages picks a target partition
// within a topic.
type PartitioningKind byte

const (
	PartitioningBalanced    PartitioningKind = 1
	PartitioningPartitionID PartitioningKind = 2
	PartitioningMessagesKey PartitioningKind = 3
)

func (k PartitioningKind) String() string {
	switch k {
	case PartitioningBalanced:
		return "balanced"
	case PartitioningPartitionID:
		return "partition_id"
	case PartitioningMessagesKey:
		return "messages_key"
	default:
		return "unknown"
	}
}

// Partitioning carries the strategy and, for PartitionID/MessagesKey, its
// payload (a 4-byte little-endian id, or an arbitrary key up to 255 bytes).
type Partitioning struct {
	Kind  PartitioningKind
	Value []byte
}

// Balanced builds a round-robin partitioning selector.
func Balanced() Partitioning { return Partitioning{Kind: PartitioningBalanced} }

// ByPartitionID pins messages to an explicit partition.
func ByPartitionID(id uint32) Partitioning {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, id)
	return Partitioning{Kind: PartitioningPartitionID, Value: value}
}

// ByMessagesKey routes messages by hashing an application-supplied key.
func ByMessagesKey(key []byte) Partitioning {
	return Partitioning{Kind: PartitioningMessagesKey, Value: key}
}

// Validate checks the payload length bounds for the chosen kind.
func (p Partitioning) Validate() error {
	switch p.Kind {
	case PartitioningBalanced:
		return nil
	case PartitioningPartitionID:
		if len(p.Value) != 4 {
			return brokerr.InvalidCommand("partitioning: partition_id payload must be 4 bytes")
		}
		return nil
	case PartitioningMessagesKey:
		if len(p.Value) < 1 || len(p.Value) > 255 {
			return brokerr.InvalidCommand("partitioning: messages_key must be 1-255 bytes")
		}
		return nil
	default:
		return brokerr.InvalidCommand("partitioning: unknown kind")
	}
}

// AsBytes encodes the partitioning as kind(1) + length(1) + payload,
// matching the identifier tag/length/payload convention.
func (p Partitioning) AsBytes() []byte {
	buf := make([]byte, 2, 2+len(p.Value))
	buf[0] = byte(p.Kind)
	buf[1] = byte(len(p.Value))
	buf = append(buf, p.Value...)
	return buf
}

// PartitioningFromBytes decodes and validates a Partitioning from the
// front of b, returning the value and the number of bytes consumed.
func PartitioningFromBytes(b []byte) (Partitioning, int, error) {
	if len(b) < 2 {
		return Partitioning{}, 0, brokerr.InvalidCommand("partitioning: buffer shorter than minimal framing")
	}
	kind := PartitioningKind(b[0])
	length := int(b[1])
	if len(b) < 2+length {
		return Partitioning{}, 0, brokerr.InvalidCommand("partitioning: truncated payload")
	}
	var value []byte
	if length > 0 {
		value = append([]byte(nil), b[2:2+length]...)
	}
	p := Partitioning{Kind: kind, Value: value}
	if err := p.Validate(); err != nil {
		return Partitioning{}, 0, err
	}
	return p, 2 + length, nil
}

// Resolve picks a 1-based partition id given the topic's partition count.
// roundRobin is the topic's shared balanced-assignment counter, advanced
// in place.
func (p Partitioning) Resolve(partitionsCount uint32, roundRobin *uint32) (uint32, error) {
	if partitionsCount == 0 {
		return 0, brokerr.InvalidCommand("partitioning: topic has no partitions")
	}
	switch p.Kind {
	case PartitioningPartitionID:
		id := binary.LittleEndian.Uint32(p.Value)
		if id < 1 || id > partitionsCount {
			return 0, brokerr.ErrNotFound(brokerr.NotFoundPartition, "out of range")
		}
		return id, nil
	case PartitioningMessagesKey:
		sum := xxhash.Sum64(p.Value)
		return uint32(sum%uint64(partitionsCount)) + 1, nil
	default:
		*roundRobin = (*roundRobin % partitionsCount) + 1
		return *roundRobin, nil
	}
}
