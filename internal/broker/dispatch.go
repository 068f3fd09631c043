package broker

import (
	"encoding/binary"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/command"
	"github.com/flowforge/streambroker/internal/wire"
)

// Dispatch decodes req's payload per its command code, runs the
// corresponding broker operation, and encodes a response payload. The
// caller (the TCP accept loop) is responsible for turning the returned
// error into a status code via wire.StatusFor.
func (b *Broker) Dispatch(req wire.Request) ([]byte, error) {
	switch req.Code {
	case wire.CodeCreateStream:
		c, err := command.CreateStreamFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		record, err := b.CreateStream(c)
		if err != nil {
			return nil, err
		}
		return encodeID(record.ID), nil

	case wire.CodeDeleteStream:
		c, err := command.DeleteStreamFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.DeleteStream(c.StreamID)

	case wire.CodeCreateTopic:
		c, err := command.CreateTopicFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		record, err := b.CreateTopic(c)
		if err != nil {
			return nil, err
		}
		return encodeID(record.ID), nil

	case wire.CodeDeleteTopic:
		c, err := command.DeleteTopicFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.DeleteTopic(c.StreamID, c.TopicID)

	case wire.CodeCreatePartitions:
		c, err := command.CreatePartitionsFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.CreatePartitions(c)

	case wire.CodeDeletePartitions:
		c, err := command.DeletePartitionsFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.DeletePartitions(c)

	case wire.CodeSendMessages:
		c, err := command.SendMessagesFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.SendMessages(c)

	case wire.CodePollMessages:
		c, err := command.PollMessagesFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		messages, err := b.PollMessages(c)
		if err != nil {
			return nil, err
		}
		buf := binary.LittleEndian.AppendUint32(nil, uint32(len(messages)))
		for _, m := range messages {
			buf = m.AppendBytes(buf)
		}
		return buf, nil

	case wire.CodeStoreConsumerOffset:
		c, err := command.StoreConsumerOffsetFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, b.StoreConsumerOffset(c)

	case wire.CodeGetConsumerOffset:
		c, err := command.GetConsumerOffsetFromBytes(req.Payload)
		if err != nil {
			return nil, err
		}
		offset, err := b.GetConsumerOffset(c)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(nil, offset), nil

	default:
		return nil, brokerr.InvalidCommand("dispatch: unknown command code")
	}
}

func encodeID(id uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, id)
}
