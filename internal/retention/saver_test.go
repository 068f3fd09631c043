package retention_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/retention"
)

type fakeFlusher struct {
	err   error
	calls atomic.Int64
}

func (f *fakeFlusher) Flush() error {
	f.calls.Add(1)
	return f.err
}

func TestSaverFlushesOnEveryTick(t *testing.T) {
	flusher := &fakeFlusher{}
	s := retention.NewSaver(5*time.Millisecond, func() []retention.PartitionFlusher {
		return []retention.PartitionFlusher{flusher}
	}, zap.NewNop())

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return flusher.calls.Load() >= 2
	}, time.Second, time.Millisecond)
}

func TestSaverContinuesAfterPartitionError(t *testing.T) {
	failing := &fakeFlusher{err: assertError{}}
	healthy := &fakeFlusher{}
	s := retention.NewSaver(5*time.Millisecond, func() []retention.PartitionFlusher {
		return []retention.PartitionFlusher{failing, healthy}
	}, zap.NewNop())

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return healthy.calls.Load() >= 2 && failing.calls.Load() >= 2
	}, time.Second, time.Millisecond)
}
