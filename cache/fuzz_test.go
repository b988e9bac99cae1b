package cache

import (
	"context"
	"testing"

	"go.uber.org/atomic"

	"github.com/IvanBrykalov/weakcache/subkey"
)

// Fuzz sub-key selection: every byte picks a component from a small pool, so
// inputs cover every arity, repeated components and permutations. Looking up
// the same selection again is a hit; a different selection never is.
// NOTE: selections are capped to keep keyN allocations bounded.
func FuzzCache_SubKeySelection(f *testing.F) {
	f.Add([]byte{}, []byte{0})
	f.Add([]byte{1}, []byte{1, 1})
	f.Add([]byte{0, 1}, []byte{1, 0})
	f.Add([]byte{0, 1, 2}, []byte{0, 1, 2, 3})
	f.Add([]byte{3, 3, 3, 3, 3}, []byte{3, 3, 3, 3})

	pool := newIfaces(8)
	pick := func(sel []byte) []*iface {
		const limit = 64
		if len(sel) > limit {
			sel = sel[:limit]
		}
		out := make([]*iface, len(sel))
		for i, b := range sel {
			out[i] = pool[int(b)%len(pool)]
		}
		return out
	}
	same := func(a, b []*iface) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}

	f.Fuzz(func(t *testing.T, x, y []byte) {
		var calls atomic.Int64
		c := newProxyCache(t, synth(&calls, false))
		l := &loader{name: "fuzz"}
		ctx := context.Background()
		ix, iy := pick(x), pick(y)

		kx, ky := subkey.Of(ix...), subkey.Of(iy...)
		if subkey.Len(kx) != len(ix) {
			t.Fatalf("Len want %d, got %d", len(ix), subkey.Len(kx))
		}
		if eq := kx.Equal(ky); eq != same(ix, iy) {
			t.Fatalf("Equal=%v for selections %v and %v", eq, x, y)
		}
		if kx.Equal(ky) && kx.Hash() != ky.Hash() {
			t.Fatalf("equal sub-keys with different hashes")
		}

		vx, err := c.Get(ctx, l, ix)
		if err != nil {
			t.Fatal(err)
		}
		again, err := c.Get(ctx, l, append([]*iface(nil), ix...))
		if err != nil {
			t.Fatal(err)
		}
		if vx != again {
			t.Fatalf("repeated selection %v missed", x)
		}
		vy, err := c.Get(ctx, l, iy)
		if err != nil {
			t.Fatal(err)
		}
		if (vx == vy) != same(ix, iy) {
			t.Fatalf("selections %v and %v: shared=%v", x, y, vx == vy)
		}
	})
}
