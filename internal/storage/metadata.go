// Package storage declares the stream and topic metadata storage
// capabilities. Segment and partition storage live beside their
// consumers in internal/segment and internal/partition; this package
// covers the coarser create/load/delete records that sit above them.
package storage

import (
	"time"

	"github.com/flowforge/streambroker/internal/identifier"
)

// StreamRecord is the persisted metadata for one stream.
type StreamRecord struct {
	ID   uint32
	Name string
}

// TopicRecord is the persisted metadata for one topic within a stream.
type TopicRecord struct {
	ID              uint32
	StreamID        uint32
	Name            string
	PartitionsCount uint32
	MessageExpiry   time.Duration
}

// StreamStorage creates, loads, and deletes stream metadata records.
type StreamStorage interface {
	SaveStream(record StreamRecord) error
	LoadStream(id identifier.Identifier) (StreamRecord, error)
	LoadStreams() ([]StreamRecord, error)
	DeleteStream(id identifier.Identifier) error
}

// TopicStorage creates, loads, and deletes topic metadata records.
type TopicStorage interface {
	SaveTopic(record TopicRecord) error
	LoadTopic(streamID uint32, id identifier.Identifier) (TopicRecord, error)
	LoadTopics(streamID uint32) ([]TopicRecord, error)
	DeleteTopic(streamID uint32, id identifier.Identifier) error
}
