package cache

import "sync"

// shard is an independent partition of the outer map with its own lock:
// weak key handle -> inner map of that key.
type shard[K, V any] struct {
	// ---- guarded by mu ----
	mu sync.RWMutex
	m  map[keyHandle[K]]*valuesMap[V]
}

func newShard[K, V any]() *shard[K, V] {
	return &shard[K, V]{m: make(map[keyHandle[K]]*valuesMap[V])}
}

// valuesFor returns the inner map of h, creating it on first use.
// created reports whether this call made it; exactly one caller per handle
// observes true.
func (s *shard[K, V]) valuesFor(h keyHandle[K]) (vm *valuesMap[V], created bool) {
	// fast path: existing key
	s.mu.RLock()
	vm, ok := s.m[h]
	s.mu.RUnlock()
	if ok {
		return vm, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// double-check after upgrading the lock
	if vm, ok = s.m[h]; ok {
		return vm, false
	}
	vm = newValuesMap[V]()
	s.m[h] = vm
	return vm, true
}

// lookup returns the inner map of h, or nil.
func (s *shard[K, V]) lookup(h keyHandle[K]) *valuesMap[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[h]
}

// remove deletes h and returns its inner map, or nil if h was absent.
func (s *shard[K, V]) remove(h keyHandle[K]) *valuesMap[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.m[h]
	if !ok {
		return nil
	}
	delete(s.m, h)
	return vm
}

// Len returns the number of outer keys in this shard.
func (s *shard[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// clear drops every key.
func (s *shard[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}
