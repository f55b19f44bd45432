package ratelimit

import (
	"hash/fnv"
	"sync"
)

// bucketMap holds per-caller buckets partitioned into fixed shards so
// unrelated callers never contend on one lock.
type bucketMap struct {
	shards [64]bucketShard
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newBucketMap() *bucketMap {
	var m bucketMap
	for i := range m.shards {
		m.shards[i].buckets = make(map[string]*bucket)
	}
	return &m
}

func (m *bucketMap) shardFor(key string) *bucketShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%uint32(len(m.shards))]
}

// acquire returns the bucket for key, creating it via init if absent.
func (m *bucketMap) acquire(key string, init func() *bucket) *bucket {
	s := m.shardFor(key)
	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = init()
		s.buckets[key] = b
	}
	s.mu.Unlock()
	return b
}

// sweep removes buckets for which drop returns true.
func (m *bucketMap) sweep(drop func(b *bucket) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, b := range s.buckets {
			if drop(b) {
				delete(s.buckets, k)
			}
		}
		s.mu.Unlock()
	}
}
