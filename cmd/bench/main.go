// Command bench runs a synthetic loader/interface workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/weakcache/cache"
	pmet "github.com/IvanBrykalov/weakcache/metrics/prom"
	"github.com/IvanBrykalov/weakcache/subkey"
)

// loader owns generated artifacts; iface is one of the descriptors an artifact
// implements.
type (
	loader struct {
		name string
	}
	iface struct {
		name string
	}
	artifact struct {
		loader *loader
		ifaces []*iface
	}
)

// generation is a set of loaders that become unreachable together once the
// next generation replaces it.
type generation struct {
	id      int
	loaders []*loader
}

func newGeneration(id, n int) *generation {
	g := &generation{id: id, loaders: make([]*loader, n)}
	for i := range g.loaders {
		g.loaders[i] = &loader{name: "gen" + strconv.Itoa(id) + "/l" + strconv.Itoa(i)}
	}
	return g
}

func newLogger(verbosity int) (logr.Logger, func(), error) {
	cfg := zap.NewDevelopmentConfig()
	// zapr maps V(n) to zap level -n.
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

func main() {
	// ---- Flags ----
	var (
		shards = flag.Int("shards", 0, "number of shards (0=auto)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		loaders  = flag.Int("loaders", 256, "loaders per generation")
		ifaces   = flag.Int("ifaces", 64, "interface pool size")
		maxArity = flag.Int("arity", 4, "max interfaces per artifact")
		rotate   = flag.Duration("rotate", time.Second, "replace the loader generation every interval (0 = never)")
		work     = flag.Duration("work", 50*time.Microsecond, "simulated cost of one computation")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
		verbosity   = flag.IntP("verbose", "v", 0, "log verbosity (1 = failures, 2 = expunges)")
	)
	flag.Parse()

	log, flush, err := newLogger(*verbosity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer flush()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", "addr", *pprofAddr)
			log.Error(http.ListenAndServe(*pprofAddr, nil), "pprof server stopped")
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	var metrics cache.Metrics = cache.NoopMetrics{}
	if *metricsAddr != "" {
		metrics = pmet.New(nil, "weakcache", "bench", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", "addr", *metricsAddr)
			log.Error(http.ListenAndServe(*metricsAddr, nil), "metrics server stopped")
		}()
	}

	// ---- Build cache ----
	workCost := *work
	c, err := cache.New(cache.Options[loader, []*iface, artifact]{
		Produce: func(_ context.Context, l *loader, is []*iface) (*artifact, error) {
			time.Sleep(workCost)
			return &artifact{loader: l, ifaces: append([]*iface(nil), is...)}, nil
		},
		Derive:  subkey.FromSlice[loader, iface](),
		Shards:  *shards,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		log.Error(err, "invalid cache options")
		os.Exit(2)
	}
	defer func() { _ = c.Close() }()

	// ---- Snapshot flags for goroutines ----
	pool := make([]*iface, max(*ifaces, 1))
	for i := range pool {
		pool[i] = &iface{name: "I" + strconv.Itoa(i)}
	}
	loadersN := max(*loaders, 1)
	arity := max(*maxArity, 0)
	seedBase := *seed
	workersN := max(*workers, 1)

	var current atomic.Pointer[generation]
	current.Store(newGeneration(0, loadersN))

	// ---- Load generation ----
	var total, rotations atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	if *rotate > 0 {
		every := *rotate
		g.Go(func() error {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
				}
				prev := current.Load()
				current.Store(newGeneration(prev.id+1, loadersN))
				rotations.Add(1)
				// Give the dropped generation a chance to be reclaimed.
				runtime.GC()
			}
		})
	}

	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			sel := make([]*iface, 0, arity)
			for gctx.Err() == nil {
				gen := current.Load()
				l := gen.loaders[r.Intn(len(gen.loaders))]
				sel = sel[:0]
				for n := r.Intn(arity + 1); n > 0; n-- {
					sel = append(sel, pool[r.Intn(len(pool))])
				}
				if _, err := c.Get(gctx, l, sel); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return err
				}
				total.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error(err, "workload failed")
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := c.Stats()
	ops := total.Load()
	lookups := st.Hits + st.Misses
	hitRate := 0.0
	if lookups > 0 {
		hitRate = float64(st.Hits) / float64(lookups) * 100
	}

	fmt.Printf("shards=%d workers=%d loaders=%d ifaces=%d arity<=%d rotate=%v dur=%v seed=%d\n",
		*shards, workersN, loadersN, len(pool), arity, *rotate, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  rotations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), rotations.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  computations=%d  failures=%d\n",
		st.Hits, st.Misses, hitRate, st.Computations, st.Failures)
	fmt.Printf("expunged keys=%d values=%d  live keys=%d values=%d\n",
		st.ExpungedKeys, st.ExpungedValues, st.Keys, st.Values)
}
