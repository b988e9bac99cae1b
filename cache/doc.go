// Package cache provides a concurrent, garbage-collection-aware memoizing
// cache keyed by (key, parameter) pairs, where the key is held weakly.
//
// The motivating workload is deduplicating an expensive artifact build keyed
// by the identity of a loader-like object plus an ordered set of descriptors:
// the first request synthesizes the artifact, concurrent requests wait for it,
// later requests reuse it, and everything disappears once the loader is gone.
//
// Design
//
//   - Two-level map: an outer map from a weak key handle to an inner map from
//     sub-key to supplier. The outer map is split into shards, each protected
//     by an RWMutex; every inner map has its own mutex. No lock is held while
//     a value is computed and no two structures are ever locked together.
//
//   - Two equality disciplines: outer keys compare by identity (weak.Pointer
//     equality); sub-keys compare by value through subkey.Key.Equal. Sub-keys
//     built with subkey.Of reference their components weakly.
//
//   - Single flight: a miss installs a factory in the slot with a
//     putIfAbsent/replace step. Only the caller that runs it computes; others
//     block on the factory and then re-read the slot. Failures vacate the slot
//     so the next caller retries.
//
//   - Weak values: a computed value replaces its factory as a weak holder and
//     is recorded in a reverse index that backs ContainsValue and Len.
//
//   - Reclamation: runtime.AddCleanup notifies a queue when a key or a value
//     is reclaimed. Every public operation drains the queue first, so the
//     cache shrinks without explicit eviction or background goroutines.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Compute/Expunge/Size signals.
//     By default NoopMetrics is used; plug the Prometheus adapter to export them.
//
// Basic usage
//
//	type Loader struct{ name string }
//	type Iface struct{ name string }
//	type Proxy struct{ loader *Loader; ifaces []*Iface }
//
//	c := cache.MustNew(cache.Options[Loader, []*Iface, Proxy]{
//	    Produce: func(_ context.Context, l *Loader, is []*Iface) (*Proxy, error) {
//	        return &Proxy{loader: l, ifaces: is}, nil
//	    },
//	    Derive: subkey.FromSlice[Loader, Iface](),
//	})
//	p, err := c.Get(ctx, loader, []*Iface{a, b})
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. A hit costs two map
// lookups under read-mostly locks plus one weak pointer dereference.
package cache
