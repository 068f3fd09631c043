package wire

import (
	"errors"

	"github.com/flowforge/streambroker/internal/brokerr"
)

// Status codes the wire layer maps one-to-one to brokerr error kinds.
// 0 always means OK; a new error kind must never reuse an existing code.
const (
	StatusOK                           uint32 = 0
	StatusInvalidCommand               uint32 = 1
	StatusTooManyPartitions            uint32 = 2
	StatusInvalidOffset                uint32 = 3
	StatusSegmentClosed                uint32 = 4
	StatusInvalidConfiguration         uint32 = 5
	StatusCacheConfigValidationFailure uint32 = 6
	StatusNotFound                     uint32 = 7
	StatusIo                           uint32 = 8
	StatusCancelled                    uint32 = 9
	StatusThrottled                    uint32 = 10
	StatusUnknown                      uint32 = 255
)

// StatusFor maps err to its wire status code. nil maps to StatusOK. An
// error that doesn't match any known brokerr kind maps to StatusUnknown
// rather than panicking: the wire layer must always be able to respond.
func StatusFor(err error) uint32 {
	if err == nil {
		return StatusOK
	}

	var invalidCommand brokerr.InvalidCommandError
	if errors.As(err, &invalidCommand) {
		return StatusInvalidCommand
	}
	var tooManyPartitions brokerr.TooManyPartitionsError
	if errors.As(err, &tooManyPartitions) {
		return StatusTooManyPartitions
	}
	var invalidOffset brokerr.InvalidOffsetError
	if errors.As(err, &invalidOffset) {
		return StatusInvalidOffset
	}
	var segmentClosed brokerr.SegmentClosedError
	if errors.As(err, &segmentClosed) {
		return StatusSegmentClosed
	}
	var invalidConfiguration brokerr.InvalidConfigurationError
	if errors.As(err, &invalidConfiguration) {
		return StatusInvalidConfiguration
	}
	var cacheConfigFailure brokerr.CacheConfigValidationFailureError
	if errors.As(err, &cacheConfigFailure) {
		return StatusCacheConfigValidationFailure
	}
	var notFound brokerr.NotFoundError
	if errors.As(err, &notFound) {
		return StatusNotFound
	}
	var ioErr brokerr.IoError
	if errors.As(err, &ioErr) {
		return StatusIo
	}
	var cancelled brokerr.CancelledError
	if errors.As(err, &cancelled) {
		return StatusCancelled
	}
	var throttled brokerr.ThrottledError
	if errors.As(err, &throttled) {
		return StatusThrottled
	}

	return StatusUnknown
}
