package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAppendIncrementsCounters(t *testing.T) {
	c := ForPartition(101, 102, 103)
	before := testutil.ToFloat64(appendsTotal.WithLabelValues("101", "102", "103"))

	c.RecordAppend(5, 10*time.Millisecond)

	after := testutil.ToFloat64(appendsTotal.WithLabelValues("101", "102", "103"))
	assert.Equal(t, before+1, after)
	assert.Equal(t, float64(5), testutil.ToFloat64(appendedMessagesTotal.WithLabelValues("101", "102", "103")))
}

func TestRecordPollIncrementsCounters(t *testing.T) {
	c := ForPartition(201, 202, 203)
	c.RecordPoll(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(pollsTotal.WithLabelValues("201", "202", "203")))
	assert.Equal(t, float64(3), testutil.ToFloat64(polledMessagesTotal.WithLabelValues("201", "202", "203")))
}

func TestRecordSegmentsExpiredSkipsZero(t *testing.T) {
	c := ForPartition(301, 302, 303)
	before := testutil.ToFloat64(segmentsExpiredTotal.WithLabelValues("301", "302", "303"))

	c.RecordSegmentsExpired(0)

	after := testutil.ToFloat64(segmentsExpiredTotal.WithLabelValues("301", "302", "303"))
	assert.Equal(t, before, after)
}

func TestRecordSegmentsExpiredAddsCount(t *testing.T) {
	c := ForPartition(401, 402, 403)
	before := testutil.ToFloat64(segmentsExpiredTotal.WithLabelValues("401", "402", "403"))

	c.RecordSegmentsExpired(2)

	after := testutil.ToFloat64(segmentsExpiredTotal.WithLabelValues("401", "402", "403"))
	assert.Equal(t, before+2, after)
}

func TestCacheHitMissCountersIncrement(t *testing.T) {
	beforeHits := testutil.ToFloat64(cacheHitsTotal)
	beforeMisses := testutil.ToFloat64(cacheMissesTotal)

	RecordCacheHit()
	RecordCacheMiss()

	assert.Equal(t, beforeHits+1, testutil.ToFloat64(cacheHitsTotal))
	assert.Equal(t, beforeMisses+1, testutil.ToFloat64(cacheMissesTotal))
}

func TestActiveConnectionsGauge(t *testing.T) {
	before := testutil.ToFloat64(activeConnections)
	IncrementConnections()
	assert.Equal(t, before+1, testutil.ToFloat64(activeConnections))
	DecrementConnections()
	assert.Equal(t, before, testutil.ToFloat64(activeConnections))
}
