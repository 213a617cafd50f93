// Package cache provides a generic thread-safe LRU cache used for
// compiled match artifacts (regex patterns, parsed templates).
package cache

import (
	"fmt"
	"sync/atomic"
)

// Cache is the interface implemented by cache variants
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V) (bool, error)
	Delete(key string) (bool, error)
	Clear()
	Size() int
	Keys() []string
	Stats() *Statistics
}

// EvictCallback is invoked when an entry is evicted or deleted
type EvictCallback[V any] func(key string, value V)

// Statistics tracks cache activity with atomic counters
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// Hits returns the hit count
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the miss count
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the set count
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Evictions returns the eviction count
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// HitRate returns hits / (hits + misses), or 0 with no activity
func (s *Statistics) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("cache key cannot be empty")
	}
	if len(key) > 1024 {
		return fmt.Errorf("cache key too long: %d bytes (max 1024)", len(key))
	}
	return nil
}
