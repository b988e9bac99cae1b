package cache

import (
	"context"
	"strconv"
	"testing"

	"go.uber.org/atomic"

	"github.com/IvanBrykalov/weakcache/subkey"
)

// loader, iface and artifact model the motivating workload: a class-loader
// like owner, interface descriptors, and the proxy synthesized for them.
// Every type carries a pointer field so none lands in a tiny-allocator block,
// whose members are reclaimed together.
type loader struct{ name string }

type iface struct{ name string }

type artifact struct {
	loader *loader
	ifaces []*iface
}

func newIfaces(n int) []*iface {
	out := make([]*iface, n)
	for i := range out {
		out[i] = &iface{name: "I" + strconv.Itoa(i)}
	}
	return out
}

// synth returns a Produce callback that builds an artifact and counts calls.
// When detached is set the artifact does not reference its loader, so a
// caller can keep the artifact alive while the loader is reclaimed.
func synth(calls *atomic.Int64, detached bool) ProduceFunc[loader, []*iface, artifact] {
	return func(_ context.Context, l *loader, is []*iface) (*artifact, error) {
		calls.Inc()
		a := &artifact{ifaces: append([]*iface(nil), is...)}
		if !detached {
			a.loader = l
		}
		return a, nil
	}
}

func newProxyCache(tb testing.TB, produce ProduceFunc[loader, []*iface, artifact]) Cache[loader, []*iface, artifact] {
	tb.Helper()
	c, err := New(Options[loader, []*iface, artifact]{
		Produce: produce,
		Derive:  subkey.FromSlice[loader, iface](),
	})
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	tb.Cleanup(func() { _ = c.Close() })
	return c
}
