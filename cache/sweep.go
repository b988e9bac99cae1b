package cache

import (
	"sync"
	"sync/atomic"
	"weak"
)

// valueRecord locates an installed holder for the sweeper once its value is
// reclaimed. It must not reference the value itself.
type valueRecord[K, V any] struct {
	h      keyHandle[K]
	hash   uint64 // sub-key hash: the bucket the holder lives in
	holder *valueHolder[V]
}

// reclaimQueue is the notification queue between runtime cleanups and the
// sweeper. Cleanups run on the runtime's cleanup goroutine and only append;
// every public cache operation drains it.
type reclaimQueue[K, V any] struct {
	pending atomic.Int64 // lets an empty drain skip the lock

	mu     sync.Mutex
	keys   []keyHandle[K]
	values []*valueRecord[K, V]
}

func (q *reclaimQueue[K, V]) pushKey(h keyHandle[K]) {
	q.mu.Lock()
	q.keys = append(q.keys, h)
	q.pending.Add(1)
	q.mu.Unlock()
}

func (q *reclaimQueue[K, V]) pushValue(r *valueRecord[K, V]) {
	q.mu.Lock()
	q.values = append(q.values, r)
	q.pending.Add(1)
	q.mu.Unlock()
}

// drain takes everything queued so far.
func (q *reclaimQueue[K, V]) drain() ([]keyHandle[K], []*valueRecord[K, V]) {
	if q.pending.Load() == 0 {
		return nil, nil
	}
	q.mu.Lock()
	keys, values := q.keys, q.values
	q.keys, q.values = nil, nil
	q.pending.Add(-int64(len(keys) + len(values)))
	q.mu.Unlock()
	return keys, values
}

// Cleanup callbacks reach the queue through a weak pointer: the runtime keeps
// a cleanup (and what it captures) alive as long as the watched object, and a
// live key must not pin a cache nobody uses anymore.

func keyCleanup[K, V any](wq weak.Pointer[reclaimQueue[K, V]]) func(keyHandle[K]) {
	return func(h keyHandle[K]) {
		if q := wq.Value(); q != nil {
			q.pushKey(h)
		}
	}
}

func valueCleanup[K, V any](wq weak.Pointer[reclaimQueue[K, V]]) func(*valueRecord[K, V]) {
	return func(r *valueRecord[K, V]) {
		if q := wq.Value(); q != nil {
			q.pushValue(r)
		}
	}
}

// expunge drains the reclamation queue. Dead keys lose their outer entry and
// every reverse-index entry of their holders; dead values lose their
// reverse-index entry and the slot still holding their holder.
func (c *cache[K, P, V]) expunge() {
	keys, values := c.queue.drain()
	if len(keys) == 0 && len(values) == 0 {
		return
	}

	var nk, nv int
	for _, h := range keys {
		vm := c.shardFor(h).remove(h)
		if vm == nil {
			continue
		}
		nk++
		c.keys.Add(-1)
		for _, vh := range vm.holders() {
			c.reverse.remove(vh.ref)
		}
	}
	for _, r := range values {
		if c.reverse.remove(r.holder.ref) {
			nv++
		}
		if vm := c.shardFor(r.h).lookup(r.h); vm != nil {
			vm.removeSupplier(r.hash, r.holder)
		}
	}

	c.expKeys.Add(int64(nk))
	c.expValues.Add(int64(nv))
	if nk > 0 {
		c.opt.Metrics.Expunge(ExpungeKey, nk)
	}
	if nv > 0 {
		c.opt.Metrics.Expunge(ExpungeValue, nv)
	}
	c.reportSize()
	c.log.V(2).Info("expunged reclaimed entries", "keys", nk, "values", nv)
}

// unindex drops holders the inner map pruned because their sub-key died.
func (c *cache[K, P, V]) unindex(pruned []*valueHolder[V]) {
	if len(pruned) == 0 {
		return
	}
	n := 0
	for _, vh := range pruned {
		if c.reverse.remove(vh.ref) {
			n++
		}
	}
	c.expValues.Add(int64(n))
	c.opt.Metrics.Expunge(ExpungeValue, n)
	c.reportSize()
}
