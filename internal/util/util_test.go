package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 17: 32, 1 << 40: 1 << 40, 1<<63 + 1: 1 << 63}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
}

func TestShardCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ReasonableShardCount(), ShardCount(0))
	assert.Equal(t, ReasonableShardCount(), ShardCount(-3))
	assert.Equal(t, 1, ShardCount(1))
	assert.Equal(t, 8, ShardCount(5))
	assert.Equal(t, maxShards, ShardCount(10_000))
	assert.True(t, IsPowerOfTwo(uint64(ReasonableShardCount())))
}

func TestShardIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ShardIndex(12345, 1))
	assert.Equal(t, 5, ShardIndex(13, 8))  // mask path
	assert.Equal(t, 3, ShardIndex(13, 10)) // modulo path
}

// The identity hash depends only on the address, never on the contents.
func TestPointerHash_Identity(t *testing.T) {
	t.Parallel()

	type box struct{ s string }
	a, b := &box{"x"}, &box{"x"}
	assert.Equal(t, PointerHash(a), PointerHash(a))
	assert.NotEqual(t, PointerHash(a), PointerHash(b))
}

func TestCombine_Polynomial(t *testing.T) {
	t.Parallel()

	var h uint64
	for _, x := range []uint64{7, 11} {
		h = Combine(h, x)
	}
	assert.Equal(t, uint64(31*7+11), h)
}
