package cache

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-report-cache/internal/cacheinfra"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewLRU_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		lru, err := NewLRU[string](capacity)
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("NewLRU(%d) error = %v, want ErrInvalidCapacity", capacity, err)
		}
		if lru != nil {
			t.Errorf("NewLRU(%d) returned non-nil cache", capacity)
		}
	}
}

func TestLRU_SetThenGet(t *testing.T) {
	lru, err := NewLRU[string](4)
	if err != nil {
		t.Fatalf("NewLRU() failed: %v", err)
	}

	tests := []struct {
		key   string
		value string
		ttl   time.Duration
	}{
		{key: "a", value: "alpha", ttl: time.Nanosecond},
		{key: "b", value: "beta", ttl: time.Second},
		{key: "c", value: "", ttl: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			lru.Set(tt.key, tt.value, tt.ttl, baseTime)
			got, ok := lru.Get(tt.key, baseTime)
			if !ok {
				t.Fatalf("Get(%q) missed immediately after Set", tt.key)
			}
			if got != tt.value {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestLRU_LazyExpiry(t *testing.T) {
	lru, _ := NewLRU[int](4)
	lru.Set("k", 1, time.Minute, baseTime)

	if _, ok := lru.Get("k", baseTime.Add(59*time.Second)); !ok {
		t.Fatal("expected hit before expiry")
	}

	if lru.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", lru.Len())
	}

	if _, ok := lru.Get("k", baseTime.Add(time.Minute)); ok {
		t.Fatal("expected miss at expiresAt")
	}

	if lru.Len() != 0 {
		t.Errorf("expected expired entry to be removed on access, got %d entries", lru.Len())
	}
}

func TestLRU_ExpiredEntriesAreNotSwept(t *testing.T) {
	lru, _ := NewLRU[int](4)
	lru.Set("a", 1, time.Second, baseTime)
	lru.Set("b", 2, time.Second, baseTime)

	// Reading another key must not reclaim expired neighbours.
	lru.Get("missing", baseTime.Add(time.Hour))

	if lru.Len() != 2 {
		t.Errorf("expected expired entries to remain until touched, got %d", lru.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	const capacity = 3
	lru, _ := NewLRU[int](capacity)

	for i := 0; i < capacity; i++ {
		lru.Set(fmt.Sprintf("k%d", i), i, time.Hour, baseTime)
	}

	// Touch k0 so k1 becomes the least recently used entry.
	if _, ok := lru.Get("k0", baseTime); !ok {
		t.Fatal("expected k0 to be present")
	}

	lru.Set("k3", 3, time.Hour, baseTime)

	if lru.Len() != capacity {
		t.Fatalf("expected %d entries, got %d", capacity, lru.Len())
	}

	if _, ok := lru.Get("k1", baseTime); ok {
		t.Error("expected k1 to be evicted")
	}

	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := lru.Get(key, baseTime); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestLRU_SetExistingKeyRefreshesRecency(t *testing.T) {
	lru, _ := NewLRU[int](2)
	lru.Set("a", 1, time.Hour, baseTime)
	lru.Set("b", 2, time.Hour, baseTime)
	lru.Set("a", 10, time.Hour, baseTime)
	lru.Set("c", 3, time.Hour, baseTime)

	if _, ok := lru.Get("b", baseTime); ok {
		t.Error("expected b to be evicted after a was re-set")
	}

	got, ok := lru.Get("a", baseTime)
	if !ok || got != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", got, ok)
	}
}

func TestLRU_SetExistingKeyResetsExpiry(t *testing.T) {
	lru, _ := NewLRU[int](2)
	lru.Set("a", 1, time.Second, baseTime)
	lru.Set("a", 2, time.Minute, baseTime)

	if _, ok := lru.Get("a", baseTime.Add(30*time.Second)); !ok {
		t.Error("expected the second Set to replace the expiry")
	}
}

func TestLRU_KeysOrder(t *testing.T) {
	lru, _ := NewLRU[int](3)
	lru.Set("a", 1, time.Hour, baseTime)
	lru.Set("b", 2, time.Hour, baseTime)
	lru.Set("c", 3, time.Hour, baseTime)
	lru.Get("a", baseTime)

	want := []string{"b", "c", "a"}
	if got := lru.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestSynchronized_ConcurrentAccess(t *testing.T) {
	store, err := NewSynchronized(64)
	if err != nil {
		t.Fatalf("NewSynchronized() failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d-%d", g, i%16)
				store.Set(key, i, time.Minute, baseTime)
				store.Get(key, baseTime)
			}
		}(g)
	}
	wg.Wait()

	if store.Len() > 64 {
		t.Errorf("store exceeded capacity: %d", store.Len())
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{name: "default lru", cfg: DefaultConfig()},
		{name: "sharded", cfg: func() Config {
			cfg := DefaultConfig()
			cfg.Backend = BackendSharded
			return cfg
		}()},
		{name: "unknown backend", cfg: Config{Backend: "redis", Capacity: 10}, wantError: true},
		{name: "zero capacity", cfg: Config{Backend: BackendLRU}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.cfg)
			if tt.wantError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStore() failed: %v", err)
			}

			store.Set("k", "v", time.Minute, baseTime)
			if got, ok := store.Get("k", baseTime); !ok || got != "v" {
				t.Errorf("Get() = %v, %v; want v, true", got, ok)
			}
		})
	}
}

func TestNewStore_ShardedRespectsSmallCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendSharded
	cfg.Capacity = 10

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		store.Set(fmt.Sprintf("report-%d", i), i, time.Minute, baseTime)
	}

	sharded, ok := store.(*cacheinfra.SturdycStore)
	if !ok {
		t.Fatalf("NewStore() = %T, want *cacheinfra.SturdycStore", store)
	}
	if got := sharded.Size(); got > cfg.Capacity {
		t.Errorf("Size() = %d, want at most %d", got, cfg.Capacity)
	}
}
