package message

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// HeaderKey is a 1-255 byte lowercase identifier: [a-z0-9_- ].
type HeaderKey string

func isValidHeaderKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == ' ':
		return true
	default:
		return false
	}
}

// ValidateHeaderKey checks the length and character-set rules.
func ValidateHeaderKey(key HeaderKey) error {
	n := len(key)
	if n < 1 || n > 255 {
		return brokerr.InvalidCommand("header key must be 1-255 bytes")
	}
	for i := 0; i < n; i++ {
		if !isValidHeaderKeyByte(key[i]) {
			return brokerr.InvalidCommand(fmt.Sprintf("header key %q contains an invalid character", key))
		}
	}
	return nil
}

// HeaderValueKind tags the concrete type carried by a HeaderValue.
type HeaderValueKind byte

const (
	HeaderKindBool HeaderValueKind = iota + 1
	HeaderKindInt8
	HeaderKindInt16
	HeaderKindInt32
	HeaderKindInt64
	HeaderKindInt128
	HeaderKindUint8
	HeaderKindUint16
	HeaderKindUint32
	HeaderKindUint64
	HeaderKindUint128
	HeaderKindFloat32
	HeaderKindFloat64
	HeaderKindString
	HeaderKindBytes
)

// HeaderValue is a typed header payload. Exactly one of the typed fields is
// meaningful, selected by Kind; Int128/Uint128 are carried as big-endian
// 16-byte arrays since Go has no native 128-bit integer.
type HeaderValue struct {
	Kind    HeaderValueKind
	boolV   bool
	int64V  int64
	uint64V uint64
	wideV   [16]byte
	f32V    float32
	f64V    float64
	strV    string
	bytesV  []byte
}

func NewBoolHeader(v bool) HeaderValue { return HeaderValue{Kind: HeaderKindBool, boolV: v} }
func NewInt8Header(v int8) HeaderValue {
	return HeaderValue{Kind: HeaderKindInt8, int64V: int64(v)}
}
func NewInt16Header(v int16) HeaderValue {
	return HeaderValue{Kind: HeaderKindInt16, int64V: int64(v)}
}
func NewInt32Header(v int32) HeaderValue {
	return HeaderValue{Kind: HeaderKindInt32, int64V: int64(v)}
}
func NewInt64Header(v int64) HeaderValue { return HeaderValue{Kind: HeaderKindInt64, int64V: v} }
func NewInt128Header(v [16]byte) HeaderValue {
	return HeaderValue{Kind: HeaderKindInt128, wideV: v}
}
func NewUint8Header(v uint8) HeaderValue {
	return HeaderValue{Kind: HeaderKindUint8, uint64V: uint64(v)}
}
func NewUint16Header(v uint16) HeaderValue {
	return HeaderValue{Kind: HeaderKindUint16, uint64V: uint64(v)}
}
func NewUint32Header(v uint32) HeaderValue {
	return HeaderValue{Kind: HeaderKindUint32, uint64V: uint64(v)}
}
func NewUint64Header(v uint64) HeaderValue { return HeaderValue{Kind: HeaderKindUint64, uint64V: v} }
func NewUint128Header(v [16]byte) HeaderValue {
	return HeaderValue{Kind: HeaderKindUint128, wideV: v}
}
func NewFloat32Header(v float32) HeaderValue { return HeaderValue{Kind: HeaderKindFloat32, f32V: v} }
func NewFloat64Header(v float64) HeaderValue { return HeaderValue{Kind: HeaderKindFloat64, f64V: v} }
func NewStringHeader(v string) HeaderValue   { return HeaderValue{Kind: HeaderKindString, strV: v} }
func NewBytesHeader(v []byte) HeaderValue    { return HeaderValue{Kind: HeaderKindBytes, bytesV: v} }

func (h HeaderValue) Bool() bool       { return h.boolV }
func (h HeaderValue) Int8() int8       { return int8(h.int64V) }
func (h HeaderValue) Int16() int16     { return int16(h.int64V) }
func (h HeaderValue) Int32() int32     { return int32(h.int64V) }
func (h HeaderValue) Int64() int64     { return h.int64V }
func (h HeaderValue) Int128() [16]byte { return h.wideV }
func (h HeaderValue) Uint8() uint8     { return uint8(h.uint64V) }
func (h HeaderValue) Uint16() uint16   { return uint16(h.uint64V) }
func (h HeaderValue) Uint32() uint32   { return uint32(h.uint64V) }
func (h HeaderValue) Uint64() uint64   { return h.uint64V }
func (h HeaderValue) Uint128() [16]byte { return h.wideV }
func (h HeaderValue) Float32() float32 { return h.f32V }
func (h HeaderValue) Float64() float64 { return h.f64V }
func (h HeaderValue) Str() string      { return h.strV }
func (h HeaderValue) Bytes() []byte    { return h.bytesV }

// Equal compares two header values for identical kind and payload.
func (h HeaderValue) Equal(o HeaderValue) bool {
	if h.Kind != o.Kind {
		return false
	}
	switch h.Kind {
	case HeaderKindBool:
		return h.boolV == o.boolV
	case HeaderKindInt8, HeaderKindInt16, HeaderKindInt32, HeaderKindInt64:
		return h.int64V == o.int64V
	case HeaderKindInt128, HeaderKindUint128:
		return h.wideV == o.wideV
	case HeaderKindUint8, HeaderKindUint16, HeaderKindUint32, HeaderKindUint64:
		return h.uint64V == o.uint64V
	case HeaderKindFloat32:
		return h.f32V == o.f32V
	case HeaderKindFloat64:
		return h.f64V == o.f64V
	case HeaderKindString:
		return h.strV == o.strV
	case HeaderKindBytes:
		if len(h.bytesV) != len(o.bytesV) {
			return false
		}
		for i := range h.bytesV {
			if h.bytesV[i] != o.bytesV[i] {
				return false
			}
		}
		return true
	}
	return false
}

// sizeBytes returns the encoded payload length, excluding the 1-byte kind
// tag but including any length prefix for variable-width kinds.
func (h HeaderValue) sizeBytes() int {
	switch h.Kind {
	case HeaderKindBool, HeaderKindInt8, HeaderKindUint8:
		return 1
	case HeaderKindInt16, HeaderKindUint16:
		return 2
	case HeaderKindInt32, HeaderKindUint32, HeaderKindFloat32:
		return 4
	case HeaderKindInt64, HeaderKindUint64, HeaderKindFloat64:
		return 8
	case HeaderKindInt128, HeaderKindUint128:
		return 16
	case HeaderKindString:
		return 4 + len(h.strV)
	case HeaderKindBytes:
		return 4 + len(h.bytesV)
	}
	return 0
}

func (h HeaderValue) appendBytes(dst []byte) []byte {
	dst = append(dst, byte(h.Kind))
	switch h.Kind {
	case HeaderKindBool:
		if h.boolV {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case HeaderKindInt8:
		dst = append(dst, byte(h.int64V))
	case HeaderKindUint8:
		dst = append(dst, byte(h.uint64V))
	case HeaderKindInt16:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(h.int64V))
	case HeaderKindUint16:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(h.uint64V))
	case HeaderKindInt32:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(h.int64V))
	case HeaderKindUint32:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(h.uint64V))
	case HeaderKindFloat32:
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(h.f32V))
	case HeaderKindInt64:
		dst = binary.LittleEndian.AppendUint64(dst, uint64(h.int64V))
	case HeaderKindUint64:
		dst = binary.LittleEndian.AppendUint64(dst, h.uint64V)
	case HeaderKindFloat64:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(h.f64V))
	case HeaderKindInt128, HeaderKindUint128:
		dst = append(dst, h.wideV[:]...)
	case HeaderKindString:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(h.strV)))
		dst = append(dst, h.strV...)
	case HeaderKindBytes:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(h.bytesV)))
		dst = append(dst, h.bytesV...)
	}
	return dst
}

func decodeHeaderValue(b []byte) (HeaderValue, int, error) {
	if len(b) < 1 {
		return HeaderValue{}, 0, brokerr.InvalidCommand("header value: missing kind tag")
	}
	kind := HeaderValueKind(b[0])
	rest := b[1:]
	need := func(n int) error {
		if len(rest) < n {
			return brokerr.InvalidCommand("header value: truncated payload")
		}
		return nil
	}
	switch kind {
	case HeaderKindBool:
		if err := need(1); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, boolV: rest[0] != 0}, 2, nil
	case HeaderKindInt8:
		if err := need(1); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, int64V: int64(int8(rest[0]))}, 2, nil
	case HeaderKindUint8:
		if err := need(1); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, uint64V: uint64(rest[0])}, 2, nil
	case HeaderKindInt16:
		if err := need(2); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, int64V: int64(int16(binary.LittleEndian.Uint16(rest)))}, 3, nil
	case HeaderKindUint16:
		if err := need(2); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, uint64V: uint64(binary.LittleEndian.Uint16(rest))}, 3, nil
	case HeaderKindInt32:
		if err := need(4); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, int64V: int64(int32(binary.LittleEndian.Uint32(rest)))}, 5, nil
	case HeaderKindUint32:
		if err := need(4); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, uint64V: uint64(binary.LittleEndian.Uint32(rest))}, 5, nil
	case HeaderKindFloat32:
		if err := need(4); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, f32V: math.Float32frombits(binary.LittleEndian.Uint32(rest))}, 5, nil
	case HeaderKindInt64:
		if err := need(8); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, int64V: int64(binary.LittleEndian.Uint64(rest))}, 9, nil
	case HeaderKindUint64:
		if err := need(8); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, uint64V: binary.LittleEndian.Uint64(rest)}, 9, nil
	case HeaderKindFloat64:
		if err := need(8); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, f64V: math.Float64frombits(binary.LittleEndian.Uint64(rest))}, 9, nil
	case HeaderKindInt128, HeaderKindUint128:
		if err := need(16); err != nil {
			return HeaderValue{}, 0, err
		}
		var w [16]byte
		copy(w[:], rest[:16])
		return HeaderValue{Kind: kind, wideV: w}, 17, nil
	case HeaderKindString:
		if err := need(4); err != nil {
			return HeaderValue{}, 0, err
		}
		n := int(binary.LittleEndian.Uint32(rest))
		if err := need(4 + n); err != nil {
			return HeaderValue{}, 0, err
		}
		return HeaderValue{Kind: kind, strV: string(rest[4 : 4+n])}, 5 + n, nil
	case HeaderKindBytes:
		if err := need(4); err != nil {
			return HeaderValue{}, 0, err
		}
		n := int(binary.LittleEndian.Uint32(rest))
		if err := need(4 + n); err != nil {
			return HeaderValue{}, 0, err
		}
		buf := make([]byte, n)
		copy(buf, rest[4:4+n])
		return HeaderValue{Kind: kind, bytesV: buf}, 5 + n, nil
	default:
		return HeaderValue{}, 0, brokerr.InvalidCommand(fmt.Sprintf("header value: unknown kind tag %d", b[0]))
	}
}

// Headers is the wire-ordered collection of message headers. Go maps have
// no stable iteration order, so encoding always walks keys sorted
// lexicographically for deterministic output; decoding reconstructs the
// same map regardless of order.
type Headers map[HeaderKey]HeaderValue

func (h Headers) sortedKeys() []HeaderKey {
	keys := make([]HeaderKey, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// SizeBytes returns the total encoded size of the headers blob.
func (h Headers) SizeBytes() uint32 {
	var total uint32
	for k, v := range h {
		total += 1 + uint32(len(k)) + 1 + uint32(v.sizeBytes())
	}
	return total
}

func (h Headers) appendBytes(dst []byte) []byte {
	for _, k := range h.sortedKeys() {
		dst = append(dst, byte(len(k)))
		dst = append(dst, k...)
		dst = h[k].appendBytes(dst)
	}
	return dst
}

func decodeHeaders(b []byte) (Headers, error) {
	headers := make(Headers)
	pos := 0
	for pos < len(b) {
		if pos+1 > len(b) {
			return nil, brokerr.InvalidCommand("headers: truncated key length")
		}
		keyLen := int(b[pos])
		pos++
		if pos+keyLen > len(b) {
			return nil, brokerr.InvalidCommand("headers: truncated key")
		}
		key := HeaderKey(b[pos : pos+keyLen])
		pos += keyLen
		if err := ValidateHeaderKey(key); err != nil {
			return nil, err
		}
		value, consumed, err := decodeHeaderValue(b[pos:])
		if err != nil {
			return nil, err
		}
		pos += consumed
		headers[key] = value
	}
	return headers, nil
}

// HeadersEqual compares two header maps for semantic equality.
func HeadersEqual(a, b Headers) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}
