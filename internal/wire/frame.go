// Package wire implements the binary request/response framing described
// for the broker's network surface: a little-endian length-prefixed
// request carrying a command code, and a status-prefixed response,
// mirroring the command codec's own little-endian encode/decode style.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// Code identifies which command a request's payload decodes as.
type Code uint32

const (
	CodeCreateStream        Code = 1
	CodeDeleteStream        Code = 2
	CodeCreateTopic         Code = 3
	CodeDeleteTopic         Code = 4
	CodeCreatePartitions    Code = 5
	CodeDeletePartitions    Code = 6
	CodeSendMessages        Code = 7
	CodePollMessages        Code = 8
	CodeStoreConsumerOffset Code = 9
	CodeGetConsumerOffset   Code = 10
)

// maxFrameBytes bounds a single request/response frame, guarding against
// a corrupt or hostile length field driving an unbounded allocation.
const maxFrameBytes = 64 << 20

// Request is a decoded but not-yet-interpreted request frame: a command
// code plus its raw payload, ready for the command package's FromBytes
// functions.
type Request struct {
	Code    Code
	Payload []byte
}

// ReadRequest reads one `[4-byte length][4-byte code][payload]` frame.
// length counts the code field plus payload, matching what WriteRequest
// writes.
func ReadRequest(r io.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 4 {
		return Request{}, brokerr.InvalidCommand("frame length shorter than the command code field")
	}
	if length > maxFrameBytes {
		return Request{}, brokerr.InvalidCommand(fmt.Sprintf("frame length %d exceeds the %d byte limit", length, maxFrameBytes))
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, err
	}

	return Request{
		Code:    Code(binary.LittleEndian.Uint32(body[:4])),
		Payload: body[4:],
	}, nil
}

// WriteRequest writes one request frame for code carrying payload.
func WriteRequest(w io.Writer, code Code, payload []byte) error {
	length := uint32(4 + len(payload))
	buf := make([]byte, 0, 8+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(code))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// WriteResponse writes one `[4-byte status][4-byte length][payload]`
// frame. status 0 means OK.
func WriteResponse(w io.Writer, status uint32, payload []byte) error {
	buf := make([]byte, 0, 8+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, status)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// Response is a decoded response frame.
type Response struct {
	Status  uint32
	Payload []byte
}

// ReadResponse reads one response frame written by WriteResponse.
func ReadResponse(r io.Reader) (Response, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Response{}, err
	}
	status := binary.LittleEndian.Uint32(header[:4])
	length := binary.LittleEndian.Uint32(header[4:])
	if length > maxFrameBytes {
		return Response{}, brokerr.InvalidCommand(fmt.Sprintf("response length %d exceeds the %d byte limit", length, maxFrameBytes))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Response{}, err
	}
	return Response{Status: status, Payload: payload}, nil
}
