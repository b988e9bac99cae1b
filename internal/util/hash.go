// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "unsafe"

// PointerHash returns a 64-bit FNV-1a hash of the address p points to.
// It is the identity hash used for weakly held keys, sub-key components and
// values: the Go heap does not move objects, so the address is stable for the
// lifetime of the referent. The hash is captured once and stays valid as a
// bucket hint after the referent is reclaimed; equality is never decided by it.
func PointerHash[T any](p *T) uint64 {
	return fnv64aFromUint64(uint64(uintptr(unsafe.Pointer(p))))
}

// Combine folds h2 into the running polynomial hash h1 (31*h1 + h2).
// Starting from 0 it yields the same value whether the elements are folded
// one by one or all at once, which keeps fixed-arity and variable-arity
// encodings of the same sequence hash-compatible.
func Combine(h1, h2 uint64) uint64 {
	return 31*h1 + h2
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnv64aFromUint64(u uint64) uint64 {
	// Hash the 8 little-endian bytes of u without allocating.
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
