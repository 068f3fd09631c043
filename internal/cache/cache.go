// Package cache holds a least-recently-used cache of message batches
// loaded from disk. The budget is byte-sized (cache.size_bytes) rather
// than entry-counted, since a batch's memory footprint varies wildly.
package cache

import (
	"container/list"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/flowforge/streambroker/internal/message"
)

// Key identifies one cached read: the disk-backed message range starting
// at BaseOffset within a partition's segment.
type Key struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
	BaseOffset  uint64
}

func (k Key) hash() uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:4], k.StreamID)
	binary.LittleEndian.PutUint32(buf[4:8], k.TopicID)
	binary.LittleEndian.PutUint32(buf[8:12], k.PartitionID)
	binary.LittleEndian.PutUint64(buf[12:20], k.BaseOffset)
	return xxhash.Sum64(buf[:])
}

type cacheItem struct {
	key      Key
	messages []message.Message
	size     int64
}

// LRU caches recently loaded message batches, evicting the least
// recently used entries once the configured byte budget is exceeded.
type LRU struct {
	mu            sync.RWMutex
	capacityBytes int64
	usedBytes     int64
	items         map[uint64]*list.Element
	lruList       *list.List

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU builds a cache bounded by capacityBytes, the validated value of
// cache.size_bytes.
func NewLRU(capacityBytes int64) *LRU {
	return &LRU{
		capacityBytes: capacityBytes,
		items:         make(map[uint64]*list.Element),
		lruList:       list.New(),
	}
}

func messagesSize(messages []message.Message) int64 {
	var total int64
	for _, m := range messages {
		total += int64(m.SizeBytes())
	}
	return total
}

// Get returns the cached messages for key, if present, moving the entry
// to the front of the LRU order.
func (c *LRU) Get(key Key) ([]message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := key.hash()
	elem, ok := c.items[h]
	if !ok {
		c.misses++
		return nil, false
	}
	c.lruList.MoveToFront(elem)
	c.hits++
	return elem.Value.(*cacheItem).messages, true
}

// Put stores messages under key, evicting older entries until the
// capacity budget is satisfied. A single entry larger than the whole
// budget is still stored: callers reading one oversized batch should not
// be denied a cache entry for it, only a chance at reuse.
func (c *LRU) Put(key Key, messages []message.Message) {
	if len(messages) == 0 || c.capacityBytes <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h := key.hash()
	size := messagesSize(messages)

	if elem, exists := c.items[h]; exists {
		c.usedBytes -= elem.Value.(*cacheItem).size
		c.lruList.Remove(elem)
		delete(c.items, h)
	}

	item := &cacheItem{key: key, messages: messages, size: size}
	elem := c.lruList.PushFront(item)
	c.items[h] = elem
	c.usedBytes += size

	for c.usedBytes > c.capacityBytes && c.lruList.Len() > 1 {
		c.evictOldest()
	}
}

func (c *LRU) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	item := elem.Value.(*cacheItem)
	c.lruList.Remove(elem)
	delete(c.items, item.key.hash())
	c.usedBytes -= item.size
	c.evictions++
}

// Invalidate drops a single cached entry, used when its segment is
// deleted by the retention cleaner.
func (c *LRU) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := key.hash()
	elem, ok := c.items[h]
	if !ok {
		return
	}
	c.lruList.Remove(elem)
	delete(c.items, h)
	c.usedBytes -= elem.Value.(*cacheItem).size
}

// Stats reports cumulative hit/miss/eviction counters.
type Stats struct {
	Entries   int
	UsedBytes int64
	Capacity  int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the cache's current counters.
func (c *LRU) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:   c.lruList.Len(),
		UsedBytes: c.usedBytes,
		Capacity:  c.capacityBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Clear empties the cache and resets its counters.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint64]*list.Element)
	c.lruList = list.New()
	c.usedBytes = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}
