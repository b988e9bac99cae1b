// Package prom exports cache metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/weakcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	computes  *prometheus.CounterVec
	duration  prometheus.Histogram
	expunged  *prometheus.CounterVec
	sizeKeys  prometheus.Gauge
	sizeValue prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Lookups served by an installed value",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Lookups that computed their value",
			ConstLabels: constLabels,
		}),
		computes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "computations_total",
				Help:        "Value computations by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "compute_duration_seconds",
			Help:        "Time spent computing values",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		expunged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "expunged_total",
				Help:        "Entries dropped after garbage collection, by what was reclaimed",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_keys",
			Help:        "Number of live outer keys",
			ConstLabels: constLabels,
		}),
		sizeValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_values",
			Help:        "Number of live installed values",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.computes, a.duration, a.expunged, a.sizeKeys, a.sizeValue)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Compute counts a computation by outcome and observes its duration.
func (a *Adapter) Compute(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.computes.WithLabelValues(result).Inc()
	a.duration.Observe(d.Seconds())
}

// Expunge adds n dropped entries under the reason label.
func (a *Adapter) Expunge(r cache.ExpungeReason, n int) {
	a.expunged.WithLabelValues(r.String()).Add(float64(n))
}

// Size updates gauges for the number of keys and values.
func (a *Adapter) Size(keys, values int) {
	a.sizeKeys.Set(float64(keys))
	a.sizeValue.Set(float64(values))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
