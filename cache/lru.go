package cache

import (
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ErrInvalidCapacity is returned when a cache is constructed with a non positive capacity.
var ErrInvalidCapacity = goerrors.New("cache capacity must be greater than 0", goerrors.CategoryValidation)

// Entry is a cached value together with its absolute expiry.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// LRU is a bounded key/value store with per entry expiry and least recently used eviction.
//
// Expired entries are removed lazily when they are read; there is no background sweeper.
// Capacity pressure is what reclaims entries nobody reads again.
//
// LRU is not safe for concurrent use. Wrap it with Synchronized or serialize access.
type LRU[V any] struct {
	capacity int
	entries  *simplelru.LRU[string, Entry[V]]
}

// NewLRU creates an LRU holding at most capacity entries.
func NewLRU[V any](capacity int) (*LRU[V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	entries, err := simplelru.NewLRU[string, Entry[V]](capacity, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create lru")
	}

	return &LRU[V]{capacity: capacity, entries: entries}, nil
}

// Get returns the value stored under key. An entry whose expiry is at or before now is
// deleted and reported as absent. A hit promotes the entry to most recently used.
func (c *LRU[V]) Get(key string, now time.Time) (V, bool) {
	var zero V

	entry, ok := c.entries.Peek(key)
	if !ok {
		return zero, false
	}

	if !entry.ExpiresAt.After(now) {
		c.entries.Remove(key)
		return zero, false
	}

	// Get moves the entry to the front of the recency list.
	c.entries.Get(key)
	return entry.Value, true
}

// Set stores value under key until now+ttl, evicting least recently used entries
// while the cache is over capacity.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration, now time.Time) {
	c.entries.Remove(key)
	c.entries.Add(key, Entry[V]{Value: value, ExpiresAt: now.Add(ttl)})

	for c.entries.Len() > c.capacity {
		c.entries.RemoveOldest()
	}
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) bool {
	return c.entries.Remove(key)
}

// Len reports the number of stored entries, expired or not.
func (c *LRU[V]) Len() int {
	return c.entries.Len()
}

// Capacity returns the configured maximum number of entries.
func (c *LRU[V]) Capacity() int {
	return c.capacity
}

// Keys returns the stored keys from least to most recently used.
func (c *LRU[V]) Keys() []string {
	return c.entries.Keys()
}

// Purge drops every entry.
func (c *LRU[V]) Purge() {
	c.entries.Purge()
}

// Synchronized guards an LRU with a mutex so a single instance can back concurrent requests.
type Synchronized struct {
	mu  sync.Mutex
	lru *LRU[any]
}

var _ Store = (*Synchronized)(nil)

// NewSynchronized creates a mutex guarded LRU store with the given capacity.
func NewSynchronized(capacity int) (*Synchronized, error) {
	lru, err := NewLRU[any](capacity)
	if err != nil {
		return nil, err
	}
	return &Synchronized{lru: lru}, nil
}

func (s *Synchronized) Get(key string, now time.Time) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(key, now)
}

func (s *Synchronized) Set(key string, value any, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Set(key, value, ttl, now)
}

// Len reports the number of stored entries.
func (s *Synchronized) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
