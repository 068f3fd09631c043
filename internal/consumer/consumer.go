// Package consumer defines the offset-tracking entity shared by the
// command codec and the partition's consumer-offset store: either a
// single consumer or a named consumer group.
package consumer

import (
	"encoding/binary"
	"fmt"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// Kind distinguishes an individual consumer from a consumer group.
type Kind byte

const (
	KindConsumer      Kind = 1
	KindConsumerGroup Kind = 2
)

func (k Kind) String() string {
	if k == KindConsumerGroup {
		return "consumer_group"
	}
	return "consumer"
}

// Consumer identifies one offset-tracking entity.
type Consumer struct {
	Kind Kind
	ID   uint32
}

// Individual builds a single-consumer identity.
func Individual(id uint32) Consumer { return Consumer{Kind: KindConsumer, ID: id} }

// Group builds a consumer-group identity.
func Group(id uint32) Consumer { return Consumer{Kind: KindConsumerGroup, ID: id} }

// AsBytes encodes the consumer as kind(1) + id(4, little-endian).
func (c Consumer) AsBytes() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(c.Kind)
	binary.LittleEndian.PutUint32(buf[1:], c.ID)
	return buf
}

// FromBytes decodes a Consumer from the front of b.
func FromBytes(b []byte) (Consumer, error) {
	if len(b) < 5 {
		return Consumer{}, brokerr.InvalidCommand("consumer: buffer shorter than minimal framing")
	}
	kind := Kind(b[0])
	if kind != KindConsumer && kind != KindConsumerGroup {
		return Consumer{}, brokerr.InvalidCommand(fmt.Sprintf("consumer: unknown kind tag %d", b[0]))
	}
	return Consumer{Kind: kind, ID: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// String renders the textual form: "c:<id>" or "g:<id>".
func (c Consumer) String() string {
	if c.Kind == KindConsumerGroup {
		return fmt.Sprintf("g:%d", c.ID)
	}
	return fmt.Sprintf("c:%d", c.ID)
}

// Parse reads the textual form produced by String.
func Parse(s string) (Consumer, error) {
	if len(s) < 3 || s[1] != ':' {
		return Consumer{}, brokerr.InvalidCommand("consumer: expected \"c:<id>\" or \"g:<id>\"")
	}
	var id uint32
	if _, err := fmt.Sscanf(s[2:], "%d", &id); err != nil {
		return Consumer{}, brokerr.InvalidCommand("consumer: invalid id")
	}
	switch s[0] {
	case 'c':
		return Individual(id), nil
	case 'g':
		return Group(id), nil
	default:
		return Consumer{}, brokerr.InvalidCommand("consumer: unknown prefix")
	}
}
