package cache

import (
	"context"
	"fmt"
	"time"
	"weak"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/weakcache/internal/util"
	"github.com/IvanBrykalov/weakcache/subkey"
)

// supplier occupies a slot of a valuesMap. get returns the value, or
// (nil, nil) when the caller must go back to the map and retry: the holder's
// value was reclaimed or the factory no longer owns its slot.
type supplier[V any] interface {
	get(ctx context.Context) (*V, error)
}

// valueRef is the weak identity of an installed value. It is comparable and
// is what the reverse index stores.
type valueRef[V any] struct {
	p    weak.Pointer[V]
	hash uint64
}

func refOf[V any](v *V) valueRef[V] {
	return valueRef[V]{p: weak.Make(v), hash: util.PointerHash(v)}
}

// valueHolder is a completed supplier: a weak reference to the value.
type valueHolder[V any] struct {
	ref valueRef[V]
}

func (h *valueHolder[V]) get(context.Context) (*V, error) {
	return h.ref.p.Value(), nil
}

// factory is a pending supplier bound to one (key, param, sub-key, slot).
// Its get is serialized by a one-permit semaphore: the first caller runs
// Produce, later callers block until it is done and then re-check the slot.
// Waiting honours ctx; the running Produce only sees its own caller's ctx.
type factory[K, P, V any] struct {
	c     *cache[K, P, V]
	key   *K
	param P
	h     keyHandle[K]
	sk    subkey.Key
	vm    *valuesMap[V]
	sem   *semaphore.Weighted
}

func newFactory[K, P, V any](c *cache[K, P, V], key *K, param P, h keyHandle[K], sk subkey.Key, vm *valuesMap[V]) *factory[K, P, V] {
	return &factory[K, P, V]{
		c:     c,
		key:   key,
		param: param,
		h:     h,
		sk:    sk,
		vm:    vm,
		sem:   semaphore.NewWeighted(1),
	}
}

func (f *factory[K, P, V]) get(ctx context.Context) (*V, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	// Someone replaced or removed us while we waited.
	if !f.vm.holds(f.sk, f) {
		return nil, nil
	}

	// On any failure, including a panic in Produce, vacate the slot so the
	// next caller starts over.
	installed := false
	defer func() {
		if !installed {
			f.vm.remove(f.sk, f)
		}
	}()

	start := time.Now()
	v, err := f.c.opt.Produce(ctx, f.key, f.param)
	switch {
	case err != nil:
		err = fmt.Errorf("cache: produce: %w", err)
	case v == nil:
		err = ErrNilValue
	}
	f.c.computed(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	holder := &valueHolder[V]{ref: refOf(v)}
	if f.vm.replace(f.sk, f, holder) {
		installed = true
		f.c.install(f.h, f.sk, holder, v)
	}
	return v, nil
}
