package batching

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// CompressionAlgorithm names a payload compression scheme. No append or
// read path in this package applies one: batches are persisted and served
// raw. The dispatch table exists so a future compressing writer has a
// ready seam, and so each algorithm stays wired to a real codec rather
// than an id with no implementation behind it.
type CompressionAlgorithm byte

const (
	CompressionNone   CompressionAlgorithm = 0
	CompressionZstd   CompressionAlgorithm = 1
	CompressionSnappy CompressionAlgorithm = 2
)

func (c CompressionAlgorithm) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Encode runs data through the named algorithm. Callers in this codebase
// use CompressionNone exclusively; Zstd and Snappy are reachable only from
// tests exercising the dispatch table directly.
func Encode(algo CompressionAlgorithm, data []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, brokerr.ErrIo(err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, brokerr.ErrInvalidConfiguration("unknown compression algorithm")
	}
}

// Decode reverses Encode.
func Decode(algo CompressionAlgorithm, data []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, brokerr.ErrIo(err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, brokerr.ErrIo(err)
		}
		return out, nil
	case CompressionSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, brokerr.ErrIo(err)
		}
		return out, nil
	default:
		return nil, brokerr.ErrInvalidConfiguration("unknown compression algorithm")
	}
}
