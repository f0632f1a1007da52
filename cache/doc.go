// Package cache provides the in-process result cache used by report endpoints and the
// key scheme that decides when two report requests may share a result.
//
// # Overview
//
// The package exports:
//
//   - LRU: a bounded, TTL aware, least recently used store (not goroutine safe)
//   - Synchronized: a mutex guarded LRU implementing Store
//   - KeyBuilder: builds stable keys from a report name, Filters and Scope
//   - StableStringify: JSON serialization with sorted object keys
//
// # Basic Usage
//
//	store, err := cache.NewSynchronized(500)
//	keys := cache.NewKeyBuilder()
//
//	key := keys.BuildKey("sales-summary", filters, scope)
//	if v, ok := store.Get(key, time.Now()); ok {
//		return v
//	}
//	store.Set(key, result, time.Minute, time.Now())
//
// # Key Stability
//
// Keys are the stable JSON form of {endpoint, filters, scope}. Every filter field is
// always emitted, missing users become "anonymous" and permissions are sorted, so
// requests that only differ in how they were assembled share an entry. Any difference
// in filters, user, company, branch or permission set produces a different key.
//
// # Expiry
//
// Entries expire lazily: an expired entry is removed the next time it is read.
// Capacity bounds memory regardless of how many entries have expired unread.
//
// Each process owns its own cache; nothing is shared or invalidated across instances.
package cache
