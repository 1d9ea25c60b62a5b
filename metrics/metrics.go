// Package metrics exposes Prometheus instrumentation for the
// characterization database engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// legal everywhere and disables instrumentation.
type Metrics struct {
	CacheHits         prometheus.Counter
	CacheBuilds       prometheus.Counter
	BuildSeconds      prometheus.Histogram
	Queries           prometheus.Counter
	InterpolantBuilds *prometheus.CounterVec
}

// New creates and registers the engine collectors on the given
// registerer. Pass prometheus.DefaultRegisterer for the process-wide
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chardb_cache_hits_total",
			Help: "Number of database constructions served from the cache artifact.",
		}),
		CacheBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chardb_cache_builds_total",
			Help: "Number of cache artifacts rebuilt from raw simulation data.",
		}),
		BuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chardb_cache_build_seconds",
			Help:    "Wall time spent rebuilding the cache from raw data.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chardb_queries_total",
			Help: "Number of point queries served.",
		}),
		InterpolantBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chardb_interpolant_builds_total",
			Help: "Number of interpolants built, per output name.",
		}, []string{"output"}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheBuilds, m.BuildSeconds, m.Queries, m.InterpolantBuilds)
	}
	return m
}
