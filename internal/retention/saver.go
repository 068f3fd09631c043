package retention

import (
	"time"

	"go.uber.org/zap"
)

// PartitionFlusher is the capability a partition exposes to the saver.
// partition.Partition implements it directly.
type PartitionFlusher interface {
	Flush() error
}

// Saver persists every partition's unsaved buffer on a fixed interval,
// the periodic counterpart to the flush AppendMessages already forces on
// segment rollover.
type Saver struct {
	interval   time.Duration
	partitions func() []PartitionFlusher
	logger     *zap.Logger
	done       chan struct{}
}

// NewSaver builds a Saver. partitions is called on every tick so newly
// created streams/topics are flushed without restarting the saver.
func NewSaver(interval time.Duration, partitions func() []PartitionFlusher, logger *zap.Logger) *Saver {
	return &Saver{
		interval:   interval,
		partitions: partitions,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs the flush loop in the background. Callers only invoke this
// when message_saver.enabled is true and interval is non-zero, a
// precondition config.Validate already enforces.
func (s *Saver) Start() {
	go s.run()
}

func (s *Saver) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			return
		}
	}
}

func (s *Saver) flush() {
	for _, p := range s.partitions() {
		if err := p.Flush(); err != nil {
			s.logger.Warn("periodic flush failed", zap.Error(err))
		}
	}
}

// Stop ends the flush loop.
func (s *Saver) Stop() {
	close(s.done)
}
