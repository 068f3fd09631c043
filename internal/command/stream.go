package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/identifier"
)

const (
	minNameLen = 1
	maxNameLen = 255
)

func validateName(field, name string) error {
	n := len(name)
	if n < minNameLen || n > maxNameLen {
		return brokerr.InvalidCommand(fmt.Sprintf("%s: name must be 1-255 bytes", field))
	}
	return nil
}

// CreateStream creates a new stream with an optional explicit numeric id.
type CreateStream struct {
	StreamID uint32 // 0 means "assign automatically"
	Name     string
}

func (c CreateStream) Validate() error {
	return validateName("create_stream", c.Name)
}

func (c CreateStream) AsBytes() []byte {
	buf := make([]byte, 4, 4+1+len(c.Name))
	binary.LittleEndian.PutUint32(buf, c.StreamID)
	buf = append(buf, byte(len(c.Name)))
	buf = append(buf, c.Name...)
	return buf
}

func CreateStreamFromBytes(b []byte) (CreateStream, error) {
	if len(b) < 5 {
		return CreateStream{}, brokerr.InvalidCommand("create_stream: buffer shorter than minimal framing")
	}
	streamID := binary.LittleEndian.Uint32(b)
	nameLen := int(b[4])
	if len(b) < 5+nameLen {
		return CreateStream{}, brokerr.InvalidCommand("create_stream: truncated name")
	}
	cmd := CreateStream{StreamID: streamID, Name: string(b[5 : 5+nameLen])}
	if err := cmd.Validate(); err != nil {
		return CreateStream{}, err
	}
	return cmd, nil
}

func (c CreateStream) String() string {
	return fmt.Sprintf("%d|%s", c.StreamID, c.Name)
}

func ParseCreateStream(s string) (CreateStream, error) {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 {
		return CreateStream{}, brokerr.InvalidCommand("create_stream: expected 2 fields")
	}
	id, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return CreateStream{}, brokerr.InvalidCommand("create_stream: invalid stream_id")
	}
	cmd := CreateStream{StreamID: uint32(id), Name: parts[1]}
	if err := cmd.Validate(); err != nil {
		return CreateStream{}, err
	}
	return cmd, nil
}

// DeleteStream removes a stream and every topic within it.
type DeleteStream struct {
	StreamID identifier.Identifier
}

func (c DeleteStream) AsBytes() []byte {
	return c.StreamID.AsBytes()
}

func DeleteStreamFromBytes(b []byte) (DeleteStream, error) {
	streamID, err := identifier.FromBytes(b)
	if err != nil {
		return DeleteStream{}, err
	}
	return DeleteStream{StreamID: streamID}, nil
}

func (c DeleteStream) String() string {
	return c.StreamID.String()
}

func ParseDeleteStream(s string) (DeleteStream, error) {
	streamID, err := identifier.Parse(s)
	if err != nil {
		return DeleteStream{}, err
	}
	return DeleteStream{StreamID: streamID}, nil
}
