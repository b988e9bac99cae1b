package cache

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	"weak"

	"github.com/go-logr/logr"

	"github.com/IvanBrykalov/weakcache/internal/util"
	"github.com/IvanBrykalov/weakcache/subkey"
)

// cache is the weak-keyed two-level map.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K, P, V any] struct {
	shards  []*shard[K, V]
	reverse *reverseIndex[V]

	queue       *reclaimQueue[K, V]
	onKeyDead   func(keyHandle[K])
	onValueDead func(*valueRecord[K, V])

	closed atomic.Bool
	opt    Options[K, P, V]
	log    logr.Logger

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	keys      util.PaddedAtomicInt64 // live outer entries
	hits      util.PaddedAtomicInt64
	misses    util.PaddedAtomicInt64
	computes  util.PaddedAtomicInt64
	failures  util.PaddedAtomicInt64
	expKeys   util.PaddedAtomicInt64
	expValues util.PaddedAtomicInt64
}

// New constructs a cache with the provided Options.
// It returns the validation error if Produce or Derive is missing.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - zero Logger  -> logr.Discard()
//   - Shards <= 0  -> auto, rounded up to the next power of two
func New[K, P, V any](opt Options[K, P, V]) (Cache[K, P, V], error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	opt = opt.withDefaults()

	n := util.ShardCount(opt.Shards)
	shards := make([]*shard[K, V], n)
	for i := range shards {
		shards[i] = newShard[K, V]()
	}

	q := &reclaimQueue[K, V]{}
	wq := weak.Make(q)
	return &cache[K, P, V]{
		shards:      shards,
		reverse:     newReverseIndex[V](n),
		queue:       q,
		onKeyDead:   keyCleanup(wq),
		onValueDead: valueCleanup(wq),
		opt:         opt,
		log:         opt.Logger.WithName("weakcache"),
	}, nil
}

// MustNew is like New but panics on invalid Options.
func MustNew[K, P, V any](opt Options[K, P, V]) Cache[K, P, V] {
	c, err := New(opt)
	if err != nil {
		panic(err)
	}
	return c
}

// ---- Cache[K,P,V] implementation ----

// Get returns the value for (key, param), computing it on a miss.
func (c *cache[K, P, V]) Get(ctx context.Context, key *K, param P) (*V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.expunge()

	sk := c.opt.Derive(key, param)
	if sk == nil {
		return nil, ErrNilSubKey
	}
	h := wrapKey(key)
	vm := c.valuesFor(key, h)

	sup := vm.get(sk)
	var f *factory[K, P, V]
	for {
		if sup != nil {
			// sup is either our factory, someone else's (we may block here),
			// or a holder whose value may already be gone.
			v, err := sup.get(ctx)
			if err != nil {
				return nil, err
			}
			if v != nil {
				c.recordLookup(f != nil && sup == supplier[V](f))
				return v, nil
			}
		}

		// Nothing usable in the slot: install our own factory, replacing a
		// dead holder or a factory that lost its slot.
		if f == nil {
			f = newFactory(c, key, param, h, sk, vm)
		}
		if sup == nil {
			prev, pruned := vm.putIfAbsent(sk, f)
			c.unindex(pruned)
			if prev != nil {
				sup = prev
			} else {
				sup = f
			}
		} else if vm.replace(sk, sup, f) {
			sup = f
		} else {
			sup = vm.get(sk)
		}
	}
}

// ContainsValue reports whether v is installed and live.
func (c *cache[K, P, V]) ContainsValue(v *V) bool {
	if v == nil || c.closed.Load() {
		return false
	}
	c.expunge()
	return c.reverse.contains(refOf(v))
}

// Len returns the number of live installed values.
func (c *cache[K, P, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	c.expunge()
	return c.reverse.len()
}

// Stats returns a snapshot of counters and sizes after a sweep.
func (c *cache[K, P, V]) Stats() Stats {
	if !c.closed.Load() {
		c.expunge()
	}
	return Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Computations:   c.computes.Load(),
		Failures:       c.failures.Load(),
		ExpungedKeys:   c.expKeys.Load(),
		ExpungedValues: c.expValues.Load(),
		Keys:           int(c.keys.Load()),
		Values:         c.reverse.len(),
	}
}

// Close marks the cache as closed and drops every entry.
// Cleanups already registered on keys and values become no-ops once the
// cache itself is unreachable.
func (c *cache[K, P, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	for _, s := range c.shards {
		s.clear()
	}
	c.reverse.clear()
	c.keys.Store(0)
	c.queue.drain()
	c.reportSize()
	return nil
}

// ---- helpers ----

// shardFor picks a shard by the handle's identity hash.
// len(c.shards) is guaranteed to be a power of two.
func (c *cache[K, P, V]) shardFor(h keyHandle[K]) *shard[K, V] {
	return c.shards[util.ShardIndex(h.hash, len(c.shards))]
}

// valuesFor returns the inner map of key, creating it and registering the key
// for reclamation on first use. The absent key is never registered.
func (c *cache[K, P, V]) valuesFor(key *K, h keyHandle[K]) *valuesMap[V] {
	vm, created := c.shardFor(h).valuesFor(h)
	if created {
		c.keys.Add(1)
		if key != nil {
			runtime.AddCleanup(key, c.onKeyDead, h)
		}
	}
	return vm
}

// install runs after a factory replaced itself with holder: it records the
// value in the reverse index and asks the runtime to report its reclamation.
func (c *cache[K, P, V]) install(h keyHandle[K], sk subkey.Key, holder *valueHolder[V], v *V) {
	if c.closed.Load() {
		return
	}
	c.reverse.add(holder.ref)
	runtime.AddCleanup(v, c.onValueDead, &valueRecord[K, V]{h: h, hash: sk.Hash(), holder: holder})
	c.reportSize()
}

// computed accounts one Produce call.
func (c *cache[K, P, V]) computed(d time.Duration, err error) {
	c.computes.Add(1)
	c.opt.Metrics.Compute(d, err)
	if err != nil {
		c.failures.Add(1)
		c.log.V(1).Info("value computation failed", "err", err.Error(), "duration", d)
	}
}

func (c *cache[K, P, V]) recordLookup(computed bool) {
	if computed {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return
	}
	c.hits.Add(1)
	c.opt.Metrics.Hit()
}

func (c *cache[K, P, V]) reportSize() {
	c.opt.Metrics.Size(int(c.keys.Load()), c.reverse.len())
}
