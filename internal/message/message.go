// Package message defines the wire-level Message type: an immutable,
// checksummed unit with an offset, timestamp, 128-bit id, lifecycle state,
// optional typed headers, and a payload.
package message

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// State is the lifecycle state of a persisted message.
type State byte

const (
	StateAvailable         State = 1
	StateUnavailable       State = 10
	StatePoisoned          State = 20
	StateMarkedForDeletion State = 30
)

// ID is a 128-bit message identifier, represented big-endian since Go has
// no native u128.
type ID [16]byte

// NewID derives an ID from a fresh random UUID, used when a producer omits
// an explicit id.
func NewID() ID {
	return ID(uuid.New())
}

// High returns the upper 64 bits.
func (id ID) High() uint64 { return binary.BigEndian.Uint64(id[:8]) }

// Low returns the lower 64 bits.
func (id ID) Low() uint64 { return binary.BigEndian.Uint64(id[8:]) }

// Message is a single immutable record. Construct with New, which computes
// the checksum; fields are read-only by convention after that.
type Message struct {
	Offset    uint64
	Timestamp uint64 // microseconds since epoch
	ID        ID
	State     State
	Checksum  uint32
	Headers   Headers // nil when absent
	Length    uint32
	Payload   []byte
}

// New constructs a Message with a freshly computed checksum over the
// payload. Offset is assigned later by the partition; pass 0 here.
func New(id ID, timestamp uint64, headers Headers, payload []byte) Message {
	return Message{
		Timestamp: timestamp,
		ID:        id,
		State:     StateAvailable,
		Checksum:  crc32.ChecksumIEEE(payload),
		Headers:   headers,
		Length:    uint32(len(payload)),
		Payload:   payload,
	}
}

// VerifyChecksum reports whether the stored checksum matches the payload.
func (m Message) VerifyChecksum() bool {
	return m.Checksum == crc32.ChecksumIEEE(m.Payload)
}

// headersLen returns the encoded size of the headers blob (0 when absent).
func (m Message) headersLen() uint32 {
	if m.Headers == nil {
		return 0
	}
	return m.Headers.SizeBytes()
}

// fixedHeaderSize is offset(8) + state(1) + timestamp(8) + id(16) +
// checksum(4) + headers-length(4).
const fixedHeaderSize = 8 + 1 + 8 + 16 + 4 + 4

// SizeBytes returns the total on-wire size of the message: fixed header +
// optional headers blob + length(4) + payload.
func (m Message) SizeBytes() uint32 {
	return fixedHeaderSize + m.headersLen() + 4 + uint32(len(m.Payload))
}

// AppendBytes appends the wire encoding of m to dst and returns the
// extended slice.
func (m Message) AppendBytes(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, m.Offset)
	dst = append(dst, byte(m.State))
	dst = binary.LittleEndian.AppendUint64(dst, m.Timestamp)
	dst = append(dst, m.ID[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, m.Checksum)
	dst = binary.LittleEndian.AppendUint32(dst, m.headersLen())
	if m.Headers != nil {
		dst = m.Headers.appendBytes(dst)
	}
	dst = binary.LittleEndian.AppendUint32(dst, m.Length)
	dst = append(dst, m.Payload...)
	return dst
}

// AsBytes encodes the full message.
func (m Message) AsBytes() []byte {
	return m.AppendBytes(make([]byte, 0, m.SizeBytes()))
}

// FromBytes decodes one message from the front of b, returning the message
// and the number of bytes consumed.
func FromBytes(b []byte) (Message, int, error) {
	if len(b) < fixedHeaderSize {
		return Message{}, 0, brokerr.InvalidCommand("message: buffer shorter than fixed header")
	}
	var m Message
	pos := 0
	m.Offset = binary.LittleEndian.Uint64(b[pos:])
	pos += 8
	m.State = State(b[pos])
	pos++
	m.Timestamp = binary.LittleEndian.Uint64(b[pos:])
	pos += 8
	copy(m.ID[:], b[pos:pos+16])
	pos += 16
	m.Checksum = binary.LittleEndian.Uint32(b[pos:])
	pos += 4
	headersLen := binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	if len(b) < pos+int(headersLen) {
		return Message{}, 0, brokerr.InvalidCommand("message: truncated headers")
	}
	if headersLen > 0 {
		headers, err := decodeHeaders(b[pos : pos+int(headersLen)])
		if err != nil {
			return Message{}, 0, err
		}
		m.Headers = headers
	}
	pos += int(headersLen)

	if len(b) < pos+4 {
		return Message{}, 0, brokerr.InvalidCommand("message: truncated length field")
	}
	m.Length = binary.LittleEndian.Uint32(b[pos:])
	pos += 4

	if len(b) < pos+int(m.Length) {
		return Message{}, 0, brokerr.InvalidCommand("message: truncated payload")
	}
	payload := make([]byte, m.Length)
	copy(payload, b[pos:pos+int(m.Length)])
	m.Payload = payload
	pos += int(m.Length)

	return m, pos, nil
}
