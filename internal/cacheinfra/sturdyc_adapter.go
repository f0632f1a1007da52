package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed report store.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	// sturdyc gives each shard Capacity/NumShards slots, so NumShards must be
	// between 1 and Capacity. Default: 64
	NumShards int

	// TTL is the upper bound sturdyc keeps an entry for. Per report expiry is
	// enforced by the store itself, so TTL must cover the longest report TTL.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Default: 10 (evict 10% of entries)
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           500,
		NumShards:          64,
		TTL:                30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1), validation.Max(c.Capacity)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sharded cache config")
	}
	return nil
}

type storedValue struct {
	value     any
	expiresAt time.Time
}

// SturdycStore is a sharded, goroutine safe report store backed by sturdyc.
//
// sturdyc expires entries with a single client wide TTL, so each value is stored with its
// own deadline and checked on read, the same lazy expiry the LRU store uses.
type SturdycStore struct {
	client *sturdyc.Client[storedValue]
	maxTTL time.Duration
}

// NewSturdycStore validates cfg and creates a sturdyc client with the provided settings.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[storedValue](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore{client: client, maxTTL: cfg.TTL}, nil
}

// Get returns the value stored under key unless it expired at or before now.
func (s *SturdycStore) Get(key string, now time.Time) (any, bool) {
	stored, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if !stored.expiresAt.After(now) {
		s.client.Delete(key)
		return nil, false
	}
	return stored.value, true
}

// Set stores value under key until now+ttl. TTLs above the configured maximum are capped.
func (s *SturdycStore) Set(key string, value any, ttl time.Duration, now time.Time) {
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.client.Set(key, storedValue{value: value, expiresAt: now.Add(ttl)})
}

// Delete removes a single entry from the cache.
func (s *SturdycStore) Delete(key string) {
	s.client.Delete(key)
}

// Size returns the number of entries sturdyc currently holds.
func (s *SturdycStore) Size() int {
	return s.client.Size()
}
