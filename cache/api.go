package cache

import "context"

// Cache is a weak-keyed memoizing cache: it maps (key, param) to a lazily
// computed value. All methods are safe for concurrent use by multiple goroutines.
//
// Keys are compared by identity and held weakly; once a key becomes
// unreachable outside the cache its entries are swept on a later call.
// Values are held weakly as well: the cache remembers a value only while
// something else keeps it alive.
type Cache[K, P, V any] interface {
	// Get returns the value for (key, param), computing it with
	// Options.Produce on a miss. A nil key is a valid, never-reclaimed key.
	//
	// Concurrent calls for the same (key, sub-key) run Produce at most once;
	// the others block until it completes. Cancelling ctx stops this caller
	// from waiting but does not cancel a Produce started by another caller.
	// Produce errors are returned and never cached: the next call retries.
	// Get never returns a nil value with a nil error.
	Get(ctx context.Context, key *K, param P) (*V, error)

	// ContainsValue reports whether v is currently installed in the cache.
	ContainsValue(v *V) bool

	// Len returns the number of installed values that are still live.
	Len() int

	// Stats returns a snapshot of counters and sizes.
	Stats() Stats

	// Close drops every entry. Subsequent Get calls return ErrClosed,
	// ContainsValue reports false and Len returns 0. Always returns nil.
	Close() error
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits           int64 // Get returned an installed value
	Misses         int64 // Get computed the value itself
	Computations   int64 // Produce calls, successful or not
	Failures       int64 // Produce calls that returned an error or nil
	ExpungedKeys   int64 // outer keys dropped after reclamation
	ExpungedValues int64 // values dropped after reclamation
	Keys           int   // live outer keys
	Values         int   // live installed values
}
