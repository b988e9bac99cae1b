package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/IvanBrykalov/weakcache/subkey"
)

// fakeKey lets tests force hash collisions and kill a sub-key on demand.
type fakeKey struct {
	id   int
	hash uint64
	dead *atomic.Bool
}

func newFakeKey(id int, hash uint64) *fakeKey {
	return &fakeKey{id: id, hash: hash, dead: atomic.NewBool(false)}
}

func (k *fakeKey) Hash() uint64 { return k.hash }
func (k *fakeKey) Live() bool   { return !k.dead.Load() }

func (k *fakeKey) Equal(other subkey.Key) bool {
	o, ok := other.(*fakeKey)
	return ok && o.id == k.id && k.Live()
}

// stub is a supplier that only carries identity.
type stub struct{ name string }

func (*stub) get(context.Context) (*artifact, error) { return nil, nil }

func holderFor(a *artifact) *valueHolder[artifact] {
	return &valueHolder[artifact]{ref: refOf(a)}
}

func TestValuesMap_PutGetReplaceRemove(t *testing.T) {
	m := newValuesMap[artifact]()
	k := newFakeKey(1, 7)
	s1, s2 := &stub{"one"}, &stub{"two"}

	prev, pruned := m.putIfAbsent(k, s1)
	require.Nil(t, prev)
	require.Empty(t, pruned)
	assert.Equal(t, supplier[artifact](s1), m.get(k))

	prev, _ = m.putIfAbsent(newFakeKey(1, 7), s2)
	assert.Equal(t, supplier[artifact](s1), prev, "occupied slot is returned, not overwritten")

	assert.False(t, m.replace(k, s2, s1), "replace requires the current occupant")
	assert.True(t, m.replace(k, s1, s2))
	assert.True(t, m.holds(k, s2))
	assert.False(t, m.holds(k, s1))

	assert.False(t, m.remove(k, s1))
	assert.True(t, m.remove(k, s2))
	assert.Nil(t, m.get(k))
	assert.Equal(t, 0, m.len())
}

// Colliding hashes share a bucket; Equal keeps the slots apart.
func TestValuesMap_HashCollisions(t *testing.T) {
	m := newValuesMap[artifact]()
	a, b, c := newFakeKey(1, 42), newFakeKey(2, 42), newFakeKey(3, 42)
	sa, sb, sc := &stub{"a"}, &stub{"b"}, &stub{"c"}

	for _, p := range []struct {
		k *fakeKey
		s *stub
	}{{a, sa}, {b, sb}, {c, sc}} {
		prev, _ := m.putIfAbsent(p.k, p.s)
		require.Nil(t, prev)
	}
	require.Equal(t, 3, m.len())

	assert.True(t, m.remove(b, sb))
	assert.Equal(t, supplier[artifact](sa), m.get(a))
	assert.Equal(t, supplier[artifact](sc), m.get(c))
	assert.Nil(t, m.get(b))
	assert.Len(t, m.buckets[42], 2)
}

// removeSupplier still finds a slot whose sub-key no longer matches itself.
func TestValuesMap_RemoveSupplierDeadKey(t *testing.T) {
	m := newValuesMap[artifact]()
	k := newFakeKey(1, 5)
	v := &artifact{}
	vh := holderFor(v)

	_, _ = m.putIfAbsent(k, vh)
	k.dead.Store(true)
	require.Nil(t, m.get(k), "a dead sub-key matches nothing")

	assert.True(t, m.removeSupplier(5, vh))
	assert.Equal(t, 0, m.len())
}

// Inserting into a bucket drops holders of dead sub-keys; pending factories
// are left alone.
func TestValuesMap_PruneOnInsert(t *testing.T) {
	m := newValuesMap[artifact]()
	deadHolder := newFakeKey(1, 9)
	deadPending := newFakeKey(2, 9)
	v := &artifact{}
	vh := holderFor(v)
	pending := &stub{"pending"}

	_, _ = m.putIfAbsent(deadHolder, vh)
	_, _ = m.putIfAbsent(deadPending, pending)
	deadHolder.dead.Store(true)
	deadPending.dead.Store(true)

	prev, pruned := m.putIfAbsent(newFakeKey(3, 9), &stub{"fresh"})
	require.Nil(t, prev)
	require.Equal(t, []*valueHolder[artifact]{vh}, pruned)
	assert.Equal(t, 2, m.len())
	assert.Empty(t, m.holders())
}

func TestValuesMap_Holders(t *testing.T) {
	m := newValuesMap[artifact]()
	v1, v2 := &artifact{}, &artifact{}
	h1, h2 := holderFor(v1), holderFor(v2)

	_, _ = m.putIfAbsent(newFakeKey(1, 1), h1)
	_, _ = m.putIfAbsent(newFakeKey(2, 2), h2)
	_, _ = m.putIfAbsent(newFakeKey(3, 3), &stub{"pending"})

	assert.ElementsMatch(t, []*valueHolder[artifact]{h1, h2}, m.holders())
}

func TestReverseIndex_AddRemove(t *testing.T) {
	r := newReverseIndex[artifact](4)
	v1, v2 := &artifact{}, &artifact{}

	assert.True(t, r.add(refOf(v1)))
	assert.False(t, r.add(refOf(v1)), "refs of the same value are equal")
	assert.True(t, r.add(refOf(v2)))
	assert.Equal(t, 2, r.len())

	assert.True(t, r.contains(refOf(v1)))
	assert.True(t, r.remove(refOf(v1)))
	assert.False(t, r.remove(refOf(v1)))
	assert.False(t, r.contains(refOf(v1)))

	r.clear()
	assert.Equal(t, 0, r.len())
	assert.False(t, r.contains(refOf(v2)))
}

func TestShard_ValuesForCreatesOnce(t *testing.T) {
	s := newShard[loader, artifact]()
	l := &loader{name: "app"}
	h := wrapKey(l)

	vm, created := s.valuesFor(h)
	require.True(t, created)
	again, created := s.valuesFor(wrapKey(l))
	require.False(t, created)
	assert.Same(t, vm, again)

	assert.Same(t, vm, s.lookup(h))
	assert.Equal(t, 1, s.Len())
	assert.Same(t, vm, s.remove(h))
	assert.Nil(t, s.remove(h))
	assert.Equal(t, 0, s.Len())
}

func TestKeyHandle_Sentinel(t *testing.T) {
	h := wrapKey[loader](nil)
	assert.True(t, h.absent())
	assert.True(t, h.live())

	l := &loader{name: "app"}
	assert.False(t, wrapKey(l).absent())
	assert.True(t, wrapKey(l).live())
	assert.Equal(t, wrapKey(l), wrapKey(l))
	assert.NotEqual(t, wrapKey(l), wrapKey(&loader{name: "app"}))
}
