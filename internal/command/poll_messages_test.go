package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/consumer"
	"github.com/flowforge/streambroker/internal/identifier"
)

func TestPollMessagesRoundTripEachStrategy(t *testing.T) {
	strategies := []PollingStrategy{
		PollByOffset(42),
		PollByTimestamp(123456789),
		PollFirst(),
		PollLast(),
		PollNext(),
	}
	for _, strategy := range strategies {
		t.Run(strategy.Kind.String(), func(t *testing.T) {
			cmd := PollMessages{
				StreamID:    identifier.Numeric(1),
				TopicID:     identifier.Numeric(2),
				PartitionID: 3,
				Consumer:    consumer.Individual(9),
				Strategy:    strategy,
				Count:       10,
				AutoCommit:  true,
			}
			decoded, err := PollMessagesFromBytes(cmd.AsBytes())
			require.NoError(t, err)
			assert.Equal(t, cmd, decoded)

			text, err := ParsePollMessages(cmd.String())
			require.NoError(t, err)
			assert.Equal(t, cmd, text)
		})
	}
}

func TestPollMessagesRejectsBadCount(t *testing.T) {
	cmd := PollMessages{
		StreamID:    identifier.Numeric(1),
		TopicID:     identifier.Numeric(2),
		PartitionID: 3,
		Consumer:    consumer.Individual(1),
		Strategy:    PollFirst(),
		Count:       0,
	}
	assert.Error(t, cmd.Validate())
}

func TestParsePollingStrategyRejectsUnknown(t *testing.T) {
	_, err := ParsePollingStrategy("nonsense")
	assert.Error(t, err)
}
