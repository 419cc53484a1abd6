package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultMaxBuckets = 100_000
	defaultIdleExpiry = 10 * time.Minute
	// A bucket idle this long has refilled completely, so evicting it
	// loses no state.
	minIdleExpiry = time.Minute
)

// LocalStore keeps token buckets in process memory, bounded by an expiring
// LRU. Buckets are per instance.
type LocalStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	now     func() time.Time
}

// NewLocalStore creates a store holding at most maxBuckets buckets, each
// evicted after idleExpiry without use.
func NewLocalStore(maxBuckets int, idleExpiry time.Duration) *LocalStore {
	return newLocalStore(maxBuckets, idleExpiry, time.Now)
}

func newLocalStore(maxBuckets int, idleExpiry time.Duration, now func() time.Time) *LocalStore {
	if maxBuckets <= 0 {
		maxBuckets = defaultMaxBuckets
	}
	if idleExpiry <= 0 {
		idleExpiry = defaultIdleExpiry
	}
	if idleExpiry < minIdleExpiry {
		idleExpiry = minIdleExpiry
	}
	return &LocalStore{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxBuckets, nil, idleExpiry),
		now:     now,
	}
}

func (s *LocalStore) Take(_ context.Context, key string, capacity int64, refillPerSecond float64) (bool, error) {
	return s.limiter(key, capacity, refillPerSecond).AllowN(s.now(), 1), nil
}

// limiter returns the bucket for key, creating it once. Re-adding refreshes
// the idle expiry.
func (s *LocalStore) limiter(key string, capacity int64, refillPerSecond float64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.buckets.Get(key)
	if !ok || limiter.Burst() != int(capacity) {
		limiter = rate.NewLimiter(rate.Limit(refillPerSecond), int(capacity))
	}
	s.buckets.Add(key, limiter)
	return limiter
}

// Len returns the number of live buckets.
func (s *LocalStore) Len() int {
	return s.buckets.Len()
}
