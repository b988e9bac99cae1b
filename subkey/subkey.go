// Package subkey provides value-comparable sub-keys built from an ordered
// sequence of weakly referenced components.
//
// A sub-key disambiguates several cached values that share one outer key.
// Components are compared by identity (pointer equality), never by their
// contents, and are referenced through weak.Pointer so a sub-key does not keep
// its components alive. Once any component has been reclaimed the sub-key is
// equal only to itself.
//
// Of picks one of four encodings by arity (0, 1, 2 or N components). The choice
// is purely an allocation/comparison optimization: all encodings use the same
// polynomial hash, so callers cannot observe which one was picked.
package subkey

import (
	"weak"

	"github.com/IvanBrykalov/weakcache/internal/util"
)

// Key is a derived sub-key. Implementations must be safe for concurrent use
// and immutable after construction. Hash must be consistent with Equal.
type Key interface {
	Hash() uint64
	Equal(other Key) bool
}

// Liveness is implemented by keys that reference reclaimable components.
// Live reports false once any component has been reclaimed; such a key can
// never match a lookup again.
type Liveness interface {
	Live() bool
}

// Empty is the sub-key of a zero-length component sequence.
var Empty Key = empty{}

type empty struct{}

func (empty) Hash() uint64         { return 0 }
func (empty) Equal(other Key) bool { return other == Empty }
func (empty) Live() bool           { return true }

// Of returns the sub-key for the given ordered components.
// A nil component panics: it can never be live, so every lookup would miss.
func Of[T any](components ...*T) Key {
	switch len(components) {
	case 0:
		return Empty
	case 1:
		return newKey1(components[0])
	case 2:
		return newKey2(components[0], components[1])
	default:
		return newKeyN(components)
	}
}

// FromSlice returns a derivation callback for parameters shaped as an ordered
// slice of components. The outer key does not contribute to the sub-key.
func FromSlice[K, T any]() func(*K, []*T) Key {
	return func(_ *K, components []*T) Key {
		return Of(components...)
	}
}

func ref[T any](p *T) weak.Pointer[T] {
	if p == nil {
		panic("subkey: nil component")
	}
	return weak.Make(p)
}

// key1 holds a single component.
type key1[T any] struct {
	hash uint64
	a    weak.Pointer[T]
}

func newKey1[T any](a *T) *key1[T] {
	return &key1[T]{hash: util.Combine(0, util.PointerHash(a)), a: ref(a)}
}

func (k *key1[T]) Hash() uint64 { return k.hash }
func (k *key1[T]) Live() bool   { return k.a.Value() != nil }

func (k *key1[T]) Equal(other Key) bool {
	if k == other {
		return true
	}
	o, ok := other.(*key1[T])
	return ok && k.hash == o.hash && k.a == o.a && k.Live()
}

// key2 holds exactly two components.
type key2[T any] struct {
	hash uint64
	a, b weak.Pointer[T]
}

func newKey2[T any](a, b *T) *key2[T] {
	h := util.Combine(0, util.PointerHash(a))
	h = util.Combine(h, util.PointerHash(b))
	return &key2[T]{hash: h, a: ref(a), b: ref(b)}
}

func (k *key2[T]) Hash() uint64 { return k.hash }
func (k *key2[T]) Live() bool   { return k.a.Value() != nil && k.b.Value() != nil }

func (k *key2[T]) Equal(other Key) bool {
	if k == other {
		return true
	}
	o, ok := other.(*key2[T])
	return ok && k.hash == o.hash && k.a == o.a && k.b == o.b && k.Live()
}

// keyN holds three or more components.
type keyN[T any] struct {
	hash uint64
	refs []weak.Pointer[T]
}

func newKeyN[T any](components []*T) *keyN[T] {
	k := &keyN[T]{refs: make([]weak.Pointer[T], len(components))}
	for i, c := range components {
		k.refs[i] = ref(c)
		k.hash = util.Combine(k.hash, util.PointerHash(c))
	}
	return k
}

func (k *keyN[T]) Hash() uint64 { return k.hash }

func (k *keyN[T]) Live() bool {
	for _, r := range k.refs {
		if r.Value() == nil {
			return false
		}
	}
	return true
}

func (k *keyN[T]) Equal(other Key) bool {
	if k == other {
		return true
	}
	o, ok := other.(*keyN[T])
	if !ok || k.hash != o.hash || len(k.refs) != len(o.refs) {
		return false
	}
	for i := range k.refs {
		if k.refs[i] != o.refs[i] {
			return false
		}
	}
	return k.Live()
}

// Len reports the number of components encoded in k, or -1 for keys not
// built by Of.
func Len(k Key) int {
	switch v := k.(type) {
	case empty:
		return 0
	case interface{ arity() int }:
		return v.arity()
	default:
		return -1
	}
}

func (k *key1[T]) arity() int { return 1 }
func (k *key2[T]) arity() int { return 2 }
func (k *keyN[T]) arity() int { return len(k.refs) }
