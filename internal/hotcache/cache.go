// Package hotcache keeps an in-process view of recently seen deduplication
// keys so the ingestion hot path can refuse obvious repeats without a store
// round trip. It is deliberately lossy: entries may vanish at any time under
// capacity pressure or TTL eviction, and a missing entry only means "ask the
// ledger". It must never be treated as the authority on acceptance.
package hotcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/itempulse/itempulse/internal/core/partition"
	"github.com/itempulse/itempulse/internal/core/tracking"
)

// DefaultShards is the shard count used when New receives a non-positive
// one.
const DefaultShards = 16

// Cache is a sharded last-seen map keyed by deduplication key. Each shard
// has its own lock so concurrent submissions on different keys rarely
// contend; nothing ever locks more than one shard at a time.
type Cache struct {
	shards []*shard
}

type shard struct {
	mu       sync.Mutex
	capacity int
	entries  map[tracking.DedupKey]*list.Element
	order    *list.List // front = most recently touched
}

type cacheEntry struct {
	key      tracking.DedupKey
	lastSeen time.Time
}

// New creates a cache with the given shard count and per-shard soft
// capacity. Non-positive shards falls back to DefaultShards; capacity zero
// or below means unbounded shards (TTL eviction still applies).
func New(shards, entriesPerShard int) *Cache {
	if shards <= 0 {
		shards = DefaultShards
	}
	if entriesPerShard < 0 {
		entriesPerShard = 0
	}

	c := &Cache{shards: make([]*shard, shards)}
	for i := range c.shards {
		c.shards[i] = &shard{
			capacity: entriesPerShard,
			entries:  make(map[tracking.DedupKey]*list.Element),
			order:    list.New(),
		}
	}
	return c
}

func (c *Cache) shardFor(key tracking.DedupKey) *shard {
	return c.shards[partition.For(key.String(), len(c.shards))]
}

// Lookup returns the last-seen time for a key, if cached.
func (c *Cache) Lookup(key tracking.DedupKey) (time.Time, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.entries[key]
	if !exists {
		return time.Time{}, false
	}

	s.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).lastSeen, true
}

// Remember records that a key was seen at ts. An existing entry keeps the
// later of the two timestamps, so out-of-order recordings never make a key
// look colder than it is.
func (c *Cache) Remember(key tracking.DedupKey, ts time.Time) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.entries[key]; exists {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		if ts.After(entry.lastSeen) {
			entry.lastSeen = ts
		}
		return
	}

	if s.capacity > 0 && s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			delete(s.entries, entry.key)
			s.order.Remove(oldest)
		}
	}

	elem := s.order.PushFront(&cacheEntry{key: key, lastSeen: ts})
	s.entries[key] = elem
}

// EvictBefore drops every entry last seen before the cutoff and reports how
// many went away. Shards are scanned one at a time; ingestion on other
// shards proceeds untouched while one shard is held.
func (c *Cache) EvictBefore(cutoff time.Time) int {
	evicted := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, elem := range s.entries {
			if elem.Value.(*cacheEntry).lastSeen.Before(cutoff) {
				delete(s.entries, key)
				s.order.Remove(elem)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Len reports the total number of cached keys across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
