package cache

import (
	"weak"

	"github.com/IvanBrykalov/weakcache/internal/util"
)

// keyHandle is the weakly held outer key. It is a comparable value used
// directly as a map key: two handles are equal iff they were made from the
// same object. A weak.Pointer made after its referent was reclaimed can never
// equal one made before, so a dead handle only matches its own copies.
//
// The zero handle is the sentinel for an absent (nil) key. It is never
// registered for reclamation and so is always present.
type keyHandle[K any] struct {
	p    weak.Pointer[K]
	hash uint64 // identity hash captured at construction
}

// wrapKey returns the handle for key. A nil key maps to the sentinel.
func wrapKey[K any](key *K) keyHandle[K] {
	if key == nil {
		return keyHandle[K]{}
	}
	return keyHandle[K]{p: weak.Make(key), hash: util.PointerHash(key)}
}

// absent reports whether h is the nil-key sentinel.
func (h keyHandle[K]) absent() bool { return h == keyHandle[K]{} }

// live reports whether the referent is still reachable. The sentinel is
// always live.
func (h keyHandle[K]) live() bool { return h.absent() || h.p.Value() != nil }
