// Package retention runs the broker's periodic background services:
// sweeping expired segments out of every partition and flushing unsaved
// buffers, each acting on its own ticker and logging what it did.
package retention

import (
	"time"

	"go.uber.org/zap"
)

// PartitionSweeper is the capability a partition exposes to the cleaner.
// partition.Partition implements it directly.
type PartitionSweeper interface {
	DeleteExpiredSegments(now time.Time) (int, error)
}

// Cleaner runs DeleteExpiredSegments across every partition on a fixed
// interval until Stop is called.
type Cleaner struct {
	interval   time.Duration
	partitions func() []PartitionSweeper
	logger     *zap.Logger
	done       chan struct{}
}

// NewCleaner builds a Cleaner. partitions is called on every tick so
// newly created streams/topics are swept without restarting the cleaner.
func NewCleaner(interval time.Duration, partitions func() []PartitionSweeper, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		interval:   interval,
		partitions: partitions,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs the sweep loop in the background. Callers only invoke this
// when message_cleaner.enabled is true and interval is non-zero, a
// precondition config.Validate already enforces.
func (c *Cleaner) Start() {
	go c.run()
}

func (c *Cleaner) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cleaner) sweep() {
	now := time.Now()
	var totalRemoved int
	for _, p := range c.partitions() {
		removed, err := p.DeleteExpiredSegments(now)
		if err != nil {
			c.logger.Warn("segment cleanup failed", zap.Error(err))
			continue
		}
		totalRemoved += removed
	}
	if totalRemoved > 0 {
		c.logger.Info("removed expired segments", zap.Int("count", totalRemoved))
	}
}

// Stop ends the sweep loop.
func (c *Cleaner) Stop() {
	close(c.done)
}
