package cache

import (
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-report-cache/internal/cacheinfra"
)

// Backend names accepted by Config.Backend.
const (
	BackendLRU     = "lru"
	BackendSharded = "sharded"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// Backend selects the store implementation: BackendLRU (default) or BackendSharded.
	Backend string
	// Capacity is the maximum number of cached reports.
	Capacity int
	// MaxTTL bounds how long the sharded backend keeps an entry. It must be at least the
	// longest report TTL. Ignored by the LRU backend.
	MaxTTL time.Duration
	// NumShards and EvictionPercentage tune the sharded backend. NumShards is
	// lowered to Capacity when larger.
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		Backend:            BackendLRU,
		Capacity:           500,
		MaxTTL:             infra.TTL,
		NumShards:          infra.NumShards,
		EvictionPercentage: infra.EvictionPercentage,
		EvictionInterval:   infra.EvictionInterval,
	}
}

// NewStore constructs the Store selected by cfg.Backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendLRU:
		store, err := NewSynchronized(cfg.Capacity)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSharded:
		store, err := cacheinfra.NewSturdycStore(cfg.toInternal())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, goerrors.New("unknown cache backend: "+cfg.Backend, goerrors.CategoryValidation)
	}
}

func (c Config) toInternal() cacheinfra.Config {
	shards := c.NumShards
	if c.Capacity > 0 && shards > c.Capacity {
		shards = c.Capacity
	}
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          shards,
		TTL:                c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}
