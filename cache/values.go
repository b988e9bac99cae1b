package cache

import (
	"sync"

	"github.com/IvanBrykalov/weakcache/subkey"
)

// slot binds a sub-key to the supplier currently occupying it.
type slot[V any] struct {
	key subkey.Key
	sup supplier[V]
}

// valuesMap is the inner map of one outer key: sub-key -> supplier.
// Sub-keys use value equality, so the map is bucketed by Hash() and
// collisions are resolved with Equal. Suppliers are compared by identity.
//
// The mutex is held only for the map operation itself, never while a
// supplier runs.
type valuesMap[V any] struct {
	mu      sync.Mutex
	buckets map[uint64][]slot[V]
	n       int
}

func newValuesMap[V any]() *valuesMap[V] {
	return &valuesMap[V]{buckets: make(map[uint64][]slot[V])}
}

// indexLocked returns the position of sk in its bucket, or -1.
func (m *valuesMap[V]) indexLocked(sk subkey.Key) ([]slot[V], int) {
	b := m.buckets[sk.Hash()]
	for i := range b {
		if b[i].key.Equal(sk) {
			return b, i
		}
	}
	return b, -1
}

// deleteLocked removes b[i] from the bucket with hash h.
func (m *valuesMap[V]) deleteLocked(h uint64, b []slot[V], i int) {
	last := len(b) - 1
	b[i] = b[last]
	b[last] = slot[V]{}
	if last == 0 {
		delete(m.buckets, h)
	} else {
		m.buckets[h] = b[:last]
	}
	m.n--
}

// get returns the supplier occupying sk, or nil.
func (m *valuesMap[V]) get(sk subkey.Key) supplier[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, i := m.indexLocked(sk); i >= 0 {
		return b[i].sup
	}
	return nil
}

// putIfAbsent installs s under sk unless the slot is occupied, in which case
// the occupant is returned and nothing changes. A nil result means s was
// installed.
//
// Value slots in the same bucket whose sub-key lost a component can never be
// matched again; they are dropped on the way and their holders returned so the
// caller can unindex them.
func (m *valuesMap[V]) putIfAbsent(sk subkey.Key, s supplier[V]) (prev supplier[V], pruned []*valueHolder[V]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := sk.Hash()
	pruned = m.pruneLocked(h)

	b, i := m.indexLocked(sk)
	if i >= 0 {
		return b[i].sup, pruned
	}
	m.buckets[h] = append(b, slot[V]{key: sk, sup: s})
	m.n++
	return nil, pruned
}

func (m *valuesMap[V]) pruneLocked(h uint64) []*valueHolder[V] {
	var out []*valueHolder[V]
	b := m.buckets[h]
	for i := 0; i < len(b); {
		lv, ok := b[i].key.(subkey.Liveness)
		vh, isHolder := b[i].sup.(*valueHolder[V])
		if ok && isHolder && !lv.Live() {
			out = append(out, vh)
			m.deleteLocked(h, b, i)
			b = m.buckets[h]
			continue
		}
		i++
	}
	return out
}

// replace swaps old for s iff sk is currently occupied by old.
// The slot keeps the sub-key of whoever created it.
func (m *valuesMap[V]) replace(sk subkey.Key, old, s supplier[V]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, i := m.indexLocked(sk); i >= 0 && b[i].sup == old {
		b[i].sup = s
		return true
	}
	return false
}

// remove clears sk iff it is currently occupied by s.
func (m *valuesMap[V]) remove(sk subkey.Key, s supplier[V]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, i := m.indexLocked(sk); i >= 0 && b[i].sup == s {
		m.deleteLocked(sk.Hash(), b, i)
		return true
	}
	return false
}

// removeSupplier clears whichever slot in bucket h is occupied by s. It does
// not consult Equal, so it still finds slots whose sub-key is no longer live.
func (m *valuesMap[V]) removeSupplier(h uint64, s supplier[V]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[h]
	for i := range b {
		if b[i].sup == s {
			m.deleteLocked(h, b, i)
			return true
		}
	}
	return false
}

// holds reports whether sk is currently occupied by s.
func (m *valuesMap[V]) holds(sk subkey.Key, s supplier[V]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, i := m.indexLocked(sk)
	return i >= 0 && b[i].sup == s
}

// holders returns every installed value holder.
func (m *valuesMap[V]) holders() []*valueHolder[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*valueHolder[V], 0, m.n)
	for _, b := range m.buckets {
		for _, s := range b {
			if vh, ok := s.sup.(*valueHolder[V]); ok {
				out = append(out, vh)
			}
		}
	}
	return out
}

// len returns the number of occupied slots.
func (m *valuesMap[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}
