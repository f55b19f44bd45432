package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// bucket is the per-key token bucket state.
type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// MemoryStore is a process-local token bucket store. Buckets live in a
// sharded map to keep lock contention off the hot path.
type MemoryStore struct {
	buckets *bucketMap
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: newBucketMap(),
		now:     time.Now,
	}
}

// Take consumes one token from the bucket for key. A new bucket starts
// full at burst capacity. Refill is continuous: elapsed seconds times
// the replenish rate, capped at burst.
func (s *MemoryStore) Take(_ context.Context, key string, p Profile) (Decision, error) {
	now := s.now()
	b := s.buckets.acquire(key, func() *bucket {
		return &bucket{tokens: float64(p.BurstCapacity), last: now}
	})

	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(float64(p.BurstCapacity), b.tokens+elapsed.Seconds()*p.ReplenishRate)
		b.last = now
	}

	d := Decision{Limit: p.BurstCapacity}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d, nil
	}

	d.Remaining = 0
	if p.ReplenishRate > 0 {
		d.RetryAfter = time.Duration((1 - b.tokens) / p.ReplenishRate * float64(time.Second))
	}
	return d, nil
}

// Prune drops buckets idle longer than maxIdle. Called periodically so
// one-off callers do not accumulate forever.
func (s *MemoryStore) Prune(maxIdle time.Duration) {
	cutoff := s.now().Add(-maxIdle)
	s.buckets.sweep(func(b *bucket) bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.last.Before(cutoff)
	})
}
