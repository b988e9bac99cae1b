package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/weakcache/internal/util"
)

// reverseIndex is the set of currently installed values, keyed by weak
// identity. It backs ContainsValue and Len and is always derived from the
// forward map: entries are added after a holder is installed and removed
// when the sweeper drops the holder.
type reverseIndex[V any] struct {
	shards []*refShard[V]
	n      atomic.Int64
}

type refShard[V any] struct {
	mu sync.RWMutex
	m  map[valueRef[V]]struct{}
}

func newReverseIndex[V any](shards int) *reverseIndex[V] {
	r := &reverseIndex[V]{shards: make([]*refShard[V], shards)}
	for i := range r.shards {
		r.shards[i] = &refShard[V]{m: make(map[valueRef[V]]struct{})}
	}
	return r
}

func (r *reverseIndex[V]) shardFor(ref valueRef[V]) *refShard[V] {
	return r.shards[util.ShardIndex(ref.hash, len(r.shards))]
}

// add records ref and reports whether it was new.
func (r *reverseIndex[V]) add(ref valueRef[V]) bool {
	s := r.shardFor(ref)
	s.mu.Lock()
	_, dup := s.m[ref]
	if !dup {
		s.m[ref] = struct{}{}
	}
	s.mu.Unlock()
	if !dup {
		r.n.Add(1)
	}
	return !dup
}

// remove forgets ref and reports whether it was present.
func (r *reverseIndex[V]) remove(ref valueRef[V]) bool {
	s := r.shardFor(ref)
	s.mu.Lock()
	_, ok := s.m[ref]
	if ok {
		delete(s.m, ref)
	}
	s.mu.Unlock()
	if ok {
		r.n.Add(-1)
	}
	return ok
}

func (r *reverseIndex[V]) contains(ref valueRef[V]) bool {
	s := r.shardFor(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[ref]
	return ok
}

func (r *reverseIndex[V]) len() int { return int(r.n.Load()) }

func (r *reverseIndex[V]) clear() {
	for _, s := range r.shards {
		s.mu.Lock()
		r.n.Add(-int64(len(s.m)))
		clear(s.m)
		s.mu.Unlock()
	}
}
