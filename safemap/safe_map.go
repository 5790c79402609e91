// Package safemap provides a generic map guarded by a read/write mutex.
// Besides the usual load/store/delete it offers atomic check-and-insert and
// point-in-time snapshots, which the chat registry and the server's
// connection table rely on.
package safemap

import (
	"maps"
	"sync"
)

// SafeMap is a map that is safe for use by multiple goroutines. Every
// operation holds the map's lock for its whole duration, so LoadOrStore and
// Snapshot observe a consistent state.
//
// The zero value is an empty map ready for use. SafeMap must not be copied
// after first use.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap returns an empty SafeMap ready for use.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (s *SafeMap[K, V]) Store(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.m[k] = v
}

// Load returns the value for key k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (s *SafeMap[K, V]) Load(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	return v, ok
}

// LoadOrStore stores v under k only if k is absent. The check and the insert
// happen under one lock, so of several concurrent callers with the same key
// exactly one stores its value.
//
// Parameters:
//   - k: The key to insert
//   - v: The value to store if k is absent
//
// Returns:
//   - The value now associated with k (the existing one if it was present)
//   - true if k was already present and nothing was stored
func (s *SafeMap[K, V]) LoadOrStore(k K, v V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.m[k]; ok {
		return existing, true
	}

	s.init()
	s.m[k] = v
	return v, false
}

// Delete removes the entry for k. Deleting an absent key is a no-op.
//
// Returns:
//   - The removed value and true, or the zero value and false if k was absent
func (s *SafeMap[K, V]) Delete(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}

	return v, ok
}

// DeleteFunc removes every entry for which del returns true. del runs with
// the lock held and must not call back into the map.
//
// Returns:
//   - The removed entries
func (s *SafeMap[K, V]) DeleteFunc(del func(k K, v V) bool) map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[K]V)
	for k, v := range s.m {
		if del(k, v) {
			removed[k] = v
			delete(s.m, k)
		}
	}

	return removed
}

// Has reports whether k is present.
func (s *SafeMap[K, V]) Has(k K) bool {
	_, ok := s.Load(k)
	return ok
}

// Len returns the number of entries.
func (s *SafeMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Snapshot returns a copy of the map taken under the lock. Later changes to
// the SafeMap are not reflected in the copy and vice versa.
func (s *SafeMap[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m)
}

// Clear removes every entry and returns what was removed.
func (s *SafeMap[K, V]) Clear() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.m
	s.m = make(map[K]V)
	return removed
}

// Range calls f for each entry of a snapshot, stopping early if f returns
// false. Because f sees a copy, it may modify the map.
func (s *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	for k, v := range s.Snapshot() {
		if !f(k, v) {
			return
		}
	}
}

// init allocates the backing map; caller must hold the write lock.
func (s *SafeMap[K, V]) init() {
	if s.m == nil {
		s.m = make(map[K]V)
	}
}
