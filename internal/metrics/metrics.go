// Package metrics exposes package-level Prometheus collectors for the
// streaming core's hot paths, with a thin Collector wrapper that fixes
// the stream/topic/partition label tuple once per call site.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_appends_total",
			Help: "Total number of AppendMessages calls per stream/topic/partition",
		},
		[]string{"stream", "topic", "partition"},
	)

	appendedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_appended_messages_total",
			Help: "Total number of individual messages appended",
		},
		[]string{"stream", "topic", "partition"},
	)

	appendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambroker_append_duration_seconds",
			Help:    "AppendMessages duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream", "topic", "partition"},
	)

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_polls_total",
			Help: "Total number of poll (GetMessages/GetNextMessages) calls",
		},
		[]string{"stream", "topic", "partition"},
	)

	polledMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_polled_messages_total",
			Help: "Total number of individual messages returned from polls",
		},
		[]string{"stream", "topic", "partition"},
	)

	segmentRolloversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_segment_rollovers_total",
			Help: "Total number of segment rollovers",
		},
		[]string{"stream", "topic", "partition"},
	)

	segmentsExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambroker_segments_expired_total",
			Help: "Total number of segments removed by the retention cleaner",
		},
		[]string{"stream", "topic", "partition"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streambroker_cache_hits_total",
			Help: "Total number of message-batch cache hits",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streambroker_cache_misses_total",
			Help: "Total number of message-batch cache misses",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambroker_connections_active",
			Help: "Number of active client connections",
		},
	)
)

// Collector scopes labeled metric recording to one partition, avoiding
// repeated label-tuple construction on the hot path.
type Collector struct {
	stream, topic, partition string
}

// ForPartition returns a Collector scoped to the given stream/topic/
// partition ID labels.
func ForPartition(streamID, topicID, partitionID uint32) Collector {
	return Collector{
		stream:    formatID(streamID),
		topic:     formatID(topicID),
		partition: formatID(partitionID),
	}
}

// RecordAppend records one AppendMessages call.
func (c Collector) RecordAppend(messageCount int, duration time.Duration) {
	appendsTotal.WithLabelValues(c.stream, c.topic, c.partition).Inc()
	appendedMessagesTotal.WithLabelValues(c.stream, c.topic, c.partition).Add(float64(messageCount))
	appendDuration.WithLabelValues(c.stream, c.topic, c.partition).Observe(duration.Seconds())
}

// RecordPoll records one poll call returning messageCount messages.
func (c Collector) RecordPoll(messageCount int) {
	pollsTotal.WithLabelValues(c.stream, c.topic, c.partition).Inc()
	polledMessagesTotal.WithLabelValues(c.stream, c.topic, c.partition).Add(float64(messageCount))
}

// RecordSegmentRollover records one segment rollover.
func (c Collector) RecordSegmentRollover() {
	segmentRolloversTotal.WithLabelValues(c.stream, c.topic, c.partition).Inc()
}

// RecordSegmentsExpired records count segments removed by the cleaner.
func (c Collector) RecordSegmentsExpired(count int) {
	if count <= 0 {
		return
	}
	segmentsExpiredTotal.WithLabelValues(c.stream, c.topic, c.partition).Add(float64(count))
}

// RecordCacheHit increments the global cache-hit counter.
func RecordCacheHit() { cacheHitsTotal.Inc() }

// RecordCacheMiss increments the global cache-miss counter.
func RecordCacheMiss() { cacheMissesTotal.Inc() }

// IncrementConnections increments the active-connection gauge.
func IncrementConnections() { activeConnections.Inc() }

// DecrementConnections decrements the active-connection gauge.
func DecrementConnections() { activeConnections.Dec() }

func formatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
