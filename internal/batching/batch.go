// Package batching implements the MessagesBatch on-disk framing: a
// contiguous, once-indexed run of packed message encodings.
package batching

import (
	"encoding/binary"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/message"
)

// frameOverhead is base_offset(8) + length(4) + last_offset_delta(4).
const frameOverhead = 8 + 4 + 4

// MessagesBatch is a persisted run of messages sharing one index entry.
type MessagesBatch struct {
	BaseOffset      uint64
	Length          uint32
	LastOffsetDelta uint32
	Messages        []byte // packed message encodings, contiguous
}

// New builds a batch from already-packed message bytes.
func New(baseOffset uint64, lastOffsetDelta uint32, packed []byte) MessagesBatch {
	return MessagesBatch{
		BaseOffset:      baseOffset,
		Length:          frameOverhead + uint32(len(packed)),
		LastOffsetDelta: lastOffsetDelta,
		Messages:        packed,
	}
}

// Pack packs a slice of messages into one batch. lastOffsetDelta must equal
// the offset of the final message minus baseOffset.
func Pack(baseOffset uint64, lastOffsetDelta uint32, messages []message.Message) MessagesBatch {
	var buf []byte
	for _, m := range messages {
		buf = m.AppendBytes(buf)
	}
	return New(baseOffset, lastOffsetDelta, buf)
}

// Unpack decodes every message stored in the batch.
func (b MessagesBatch) Unpack() ([]message.Message, error) {
	out := make([]message.Message, 0)
	pos := 0
	for pos < len(b.Messages) {
		m, n, err := message.FromBytes(b.Messages[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		pos += n
	}
	return out, nil
}

// SizeBytes returns the total framed size, matching Length.
func (b MessagesBatch) SizeBytes() uint32 {
	return frameOverhead + uint32(len(b.Messages))
}

// AppendBytes appends the on-disk encoding of b to dst.
func (b MessagesBatch) AppendBytes(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, b.BaseOffset)
	dst = binary.LittleEndian.AppendUint32(dst, b.Length)
	dst = binary.LittleEndian.AppendUint32(dst, b.LastOffsetDelta)
	dst = append(dst, b.Messages...)
	return dst
}

// AsBytes encodes the full batch.
func (b MessagesBatch) AsBytes() []byte {
	return b.AppendBytes(make([]byte, 0, b.SizeBytes()))
}

// FromBytes decodes one batch from the front of buf, returning the batch
// and the number of bytes consumed.
func FromBytes(buf []byte) (MessagesBatch, int, error) {
	if len(buf) < frameOverhead {
		return MessagesBatch{}, 0, brokerr.InvalidCommand("messages batch: buffer shorter than frame overhead")
	}
	baseOffset := binary.LittleEndian.Uint64(buf)
	length := binary.LittleEndian.Uint32(buf[8:])
	lastOffsetDelta := binary.LittleEndian.Uint32(buf[12:])

	if length < frameOverhead {
		return MessagesBatch{}, 0, brokerr.InvalidCommand("messages batch: length smaller than frame overhead")
	}
	payloadLen := int(length) - frameOverhead
	if len(buf) < frameOverhead+payloadLen {
		return MessagesBatch{}, 0, brokerr.InvalidCommand("messages batch: truncated payload")
	}
	messages := make([]byte, payloadLen)
	copy(messages, buf[frameOverhead:frameOverhead+payloadLen])

	return MessagesBatch{
		BaseOffset:      baseOffset,
		Length:          length,
		LastOffsetDelta: lastOffsetDelta,
		Messages:        messages,
	}, frameOverhead + payloadLen, nil
}
