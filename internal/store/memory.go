package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

// CacheEntry is a stored response with its expiry.
type CacheEntry struct {
	Key       string
	Value     advisory.ProviderResponse
	ExpiresAt time.Time
}

// MemoryCache is a concurrency-safe in-memory cache backend with time-based expiry.
type MemoryCache struct {
	mu sync.RWMutex

	// key: fingerprint, value: entry
	data map[string]CacheEntry

	// maxEntries bounds the map (0 = unlimited). When full, the entry
	// closest to expiry is evicted first.
	maxEntries int
	clock      clock.Clock
}

// NewMemoryCache creates a MemoryCache. If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryCache(maxEntries int, clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	return &MemoryCache{
		data:       make(map[string]CacheEntry),
		maxEntries: maxEntries,
		clock:      clk,
	}
}

// Get returns the entry for key if it has not expired.
func (s *MemoryCache) Get(_ context.Context, key string) (advisory.ProviderResponse, bool, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return advisory.ProviderResponse{}, false, nil
	}
	if !s.clock.NowUTC().Before(entry.ExpiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed it.
		if cur, ok := s.data[key]; ok && !s.clock.NowUTC().Before(cur.ExpiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return advisory.ProviderResponse{}, false, nil
	}
	return withOwnPayload(entry.Value), true, nil
}

// Put stores resp under key until now+ttl and enforces the size bound.
func (s *MemoryCache) Put(_ context.Context, key string, resp advisory.ProviderResponse, ttl time.Duration) error {
	now := s.clock.NowUTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = CacheEntry{
		Key:       key,
		Value:     withOwnPayload(resp),
		ExpiresAt: now.Add(ttl),
	}

	// Enforce retention by count.
	if s.maxEntries > 0 && len(s.data) > s.maxEntries {
		s.sweepLocked(now)
		for len(s.data) > s.maxEntries {
			s.evictSoonestLocked(key)
		}
	}
	return nil
}

// Invalidate removes key.
func (s *MemoryCache) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and reports how many were dropped.
func (s *MemoryCache) Sweep() int {
	now := s.clock.NowUTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryCache) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range s.data {
		if !now.Before(e.ExpiresAt) {
			delete(s.data, k)
			n++
		}
	}
	return n
}

func (s *MemoryCache) evictSoonestLocked(keep string) {
	var (
		victim  string
		soonest time.Time
	)
	for k, e := range s.data {
		if k == keep {
			continue
		}
		if victim == "" || e.ExpiresAt.Before(soonest) {
			victim, soonest = k, e.ExpiresAt
		}
	}
	if victim == "" {
		return
	}
	delete(s.data, victim)
}

// withOwnPayload gives resp a private copy of its payload map so neither the
// caller nor the cache can change the other's view.
func withOwnPayload(resp advisory.ProviderResponse) advisory.ProviderResponse {
	resp.Payload = maps.Clone(resp.Payload)
	return resp
}
