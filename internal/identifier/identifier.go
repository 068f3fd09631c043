// Package identifier implements the variable-length stream/topic/partition
// identifier used throughout the wire protocol: a numeric (u32) or string
// (1-255 byte) value sharing a single tag/length/payload byte layout.
package identifier

import (
	"fmt"
	"strconv"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// Kind distinguishes a string identifier from a numeric one.
type Kind byte

const (
	KindString  Kind = 1
	KindNumeric Kind = 2
)

const (
	minStringLen = 1
	maxStringLen = 255
)

// Identifier is either a 32-bit number or a short string, self-describing
// on the wire as a 1-byte kind tag followed by a 1-byte length and the
// payload bytes. Numeric payloads are the minimal big-endian encoding of
// the value (1 to 4 bytes), not a fixed-width 4-byte field.
type Identifier struct {
	kind    Kind
	numeric uint32
	text    string
}

// Numeric builds a numeric identifier.
func Numeric(value uint32) Identifier {
	return Identifier{kind: KindNumeric, numeric: value}
}

// String builds a string identifier, running Validate on it first and
// returning its error for an invalid value.
func String(value string) (Identifier, error) {
	id := Identifier{kind: KindString, text: value}
	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// Kind reports whether the identifier is numeric or string.
func (id Identifier) Kind() Kind { return id.kind }

// IsNumeric reports whether the identifier carries a numeric value.
func (id Identifier) IsNumeric() bool { return id.kind == KindNumeric }

// NumericValue returns the numeric payload; only meaningful when IsNumeric.
func (id Identifier) NumericValue() uint32 { return id.numeric }

// TextValue returns the string payload; only meaningful when !IsNumeric.
func (id Identifier) TextValue() string { return id.text }

// Validate checks the length bounds of a string identifier. Numeric
// identifiers are always valid.
func (id Identifier) Validate() error {
	if id.kind == KindNumeric {
		return nil
	}
	n := len(id.text)
	if n < minStringLen || n > maxStringLen {
		return brokerr.InvalidCommand("identifier: string length must be between 1 and 255 bytes")
	}
	return nil
}

// numericPayloadLen returns the minimal number of big-endian bytes needed
// to represent v, at least 1 even for v == 0.
func numericPayloadLen(v uint32) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

func (id Identifier) payloadLen() int {
	if id.kind == KindNumeric {
		return numericPayloadLen(id.numeric)
	}
	return len(id.text)
}

// GetSizeBytes returns 2 + payload length, matching the on-wire framing.
func (id Identifier) GetSizeBytes() int {
	return 2 + id.payloadLen()
}

// Equal reports whether two identifiers share kind and payload.
func (id Identifier) Equal(other Identifier) bool {
	if id.kind != other.kind {
		return false
	}
	if id.kind == KindNumeric {
		return id.numeric == other.numeric
	}
	return id.text == other.text
}

// AsBytes encodes the identifier as kind(1) + length(1) + payload, with a
// numeric payload trimmed to its minimal big-endian representation.
func (id Identifier) AsBytes() []byte {
	payloadLen := id.payloadLen()
	out := make([]byte, 2, 2+payloadLen)
	out[0] = byte(id.kind)
	out[1] = byte(payloadLen)
	if id.kind == KindNumeric {
		payload := make([]byte, payloadLen)
		v := id.numeric
		for i := payloadLen - 1; i >= 0; i-- {
			payload[i] = byte(v)
			v >>= 8
		}
		out = append(out, payload...)
	} else {
		out = append(out, id.text...)
	}
	return out
}

// FromBytes decodes an Identifier from the front of b and validates it.
func FromBytes(b []byte) (Identifier, error) {
	if len(b) < 3 {
		return Identifier{}, brokerr.InvalidCommand("identifier: buffer shorter than minimal framing")
	}

	kind := Kind(b[0])
	length := int(b[1])
	if kind != KindNumeric && kind != KindString {
		return Identifier{}, brokerr.InvalidCommand(fmt.Sprintf("identifier: unknown kind tag %d", b[0]))
	}
	if len(b) < 2+length {
		return Identifier{}, brokerr.InvalidCommand("identifier: truncated payload")
	}

	var id Identifier
	switch kind {
	case KindNumeric:
		if length < 1 || length > 4 {
			return Identifier{}, brokerr.InvalidCommand("identifier: numeric payload must be 1-4 bytes")
		}
		payload := b[2 : 2+length]
		var value uint32
		for _, byt := range payload {
			value = value<<8 | uint32(byt)
		}
		id = Numeric(value)
	case KindString:
		id = Identifier{kind: KindString, text: string(b[2 : 2+length])}
	}

	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// String renders the textual form used by the pipe-delimited command
// syntax: a bare decimal number for numeric identifiers, the raw text
// otherwise.
func (id Identifier) String() string {
	if id.kind == KindNumeric {
		return strconv.FormatUint(uint64(id.numeric), 10)
	}
	return id.text
}

// Parse reads the textual form produced by String: a decimal number is
// parsed as numeric, anything else is treated as a string identifier.
func Parse(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, brokerr.InvalidCommand("identifier: empty value")
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return Numeric(uint32(n)), nil
	}
	return String(s)
}
