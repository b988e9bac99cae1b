package cache

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/IvanBrykalov/weakcache/subkey"
)

// ExpungeReason explains why entries were dropped by the sweeper.
type ExpungeReason int

const (
	// ExpungeKey means the outer key was reclaimed; its whole inner map is dropped.
	ExpungeKey ExpungeReason = iota
	// ExpungeValue means a cached value was reclaimed; its slot is dropped.
	ExpungeValue
)

func (r ExpungeReason) String() string {
	switch r {
	case ExpungeKey:
		return "key"
	case ExpungeValue:
		return "value"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	// Hit is reported when Get returns an already installed value.
	Hit()
	// Miss is reported when Get returns a value it computed itself.
	Miss()
	// Compute is reported after every Produce call with its duration and
	// outcome (nil on success).
	Compute(d time.Duration, err error)
	// Expunge is reported by the sweeper with the number of entries dropped.
	Expunge(reason ExpungeReason, n int)
	// Size is reported after installs and sweeps with the live key and value counts.
	Size(keys, values int)
}

// ProduceFunc computes the value for (key, param). key is nil for the absent
// key. It must be a pure function of its inputs from the cache's point of
// view and must return either a non-nil value or an error.
type ProduceFunc[K, P, V any] func(ctx context.Context, key *K, param P) (*V, error)

// DeriveFunc derives the sub-key of (key, param). It must be deterministic
// and must never return nil.
type DeriveFunc[K, P any] func(key *K, param P) subkey.Key

// Options configures the cache. Produce and Derive are required;
// sane defaults are applied in New() for the rest:
//   - Shards <= 0     => auto (rounded up to power of two)
//   - nil Metrics     => NoopMetrics
//   - zero Logger     => logr.Discard()
type Options[K, P, V any] struct {
	// Produce computes a value on a miss.
	Produce ProduceFunc[K, P, V]

	// Derive maps (key, param) to the sub-key selecting a slot under key.
	// subkey.FromSlice covers parameters that are ordered component slices.
	Derive DeriveFunc[K, P]

	// Shards defines the number of outer-map and reverse-index shards.
	// If 0, an automatic value is chosen (≈ 2*GOMAXPROCS).
	Shards int

	// Observability
	Metrics Metrics
	// Logger receives V(1) computation failures and V(2) sweeper activity.
	Logger logr.Logger
}

// Validate checks that the required callbacks are set and the numeric
// fields are in range.
func (o *Options[K, P, V]) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Produce, validation.NotNil),
		validation.Field(&o.Derive, validation.NotNil),
		validation.Field(&o.Shards, validation.Min(0)),
	)
}

// withDefaults returns a copy of o with defaults applied.
func (o Options[K, P, V]) withDefaults() Options[K, P, V] {
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	return o
}
