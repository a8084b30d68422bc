package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the counters SPEC_FULL.md §4.16 asks for, grounded on
// shockwave/pkg/shockwave/buffer_pool_prometheus.go's counter/gauge shape
// but registered against a caller-supplied registry instead of the global
// default, since a Server is a value callers may construct more than once
// per process (promauto's package-level vars would panic on double
// registration in that case).
type metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	requestsServed      prometheus.Counter
	rateLimitRejections prometheus.Counter
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "server", Name: "connections_accepted_total",
			Help: "Total number of connections admitted.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "server", Name: "connections_rejected_total",
			Help: "Total number of connections closed immediately for exceeding max_connections.",
		}),
		requestsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "server", Name: "requests_served_total",
			Help: "Total number of HTTP requests that received a response.",
		}),
		rateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "server", Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected with 429.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "static_cache", Name: "hits_total",
			Help: "Total number of static file cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uvhttp", Subsystem: "static_cache", Name: "misses_total",
			Help: "Total number of static file cache misses.",
		}),
	}
	reg.MustRegister(
		m.connectionsAccepted,
		m.connectionsRejected,
		m.requestsServed,
		m.rateLimitRejections,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

// EnableMetrics registers the server's counters against reg. Call before
// Listen; calling it twice on the same registry panics, same as any other
// promauto/MustRegister double-registration.
func (s *Server) EnableMetrics(reg *prometheus.Registry) {
	s.metrics = newMetrics(reg)
}

// reportCacheStats copies the static responder's cumulative hit/miss
// counters onto the Prometheus counters, since cache.Cache tracks its own
// running totals (see cache.Stats) rather than emitting events.
func (s *Server) reportCacheStats() {
	if s.metrics == nil || s.static == nil {
		return
	}
	hits, misses, _ := s.static.Cache.Stats()
	addCounterDelta(s.metrics.cacheHits, &s.lastCacheHits, hits)
	addCounterDelta(s.metrics.cacheMisses, &s.lastCacheMisses, misses)
}

func addCounterDelta(c prometheus.Counter, last *int64, current int64) {
	delta := current - *last
	if delta > 0 {
		c.Add(float64(delta))
	}
	*last = current
}
