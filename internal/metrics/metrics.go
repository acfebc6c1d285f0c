// Package metrics exposes Prometheus collectors for the request pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formwork"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolutions    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	renderDuration prometheus.Histogram
	cacheClears    prometheus.Counter
	reloads        prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolved requests by outcome kind",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering pages",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheClears: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_clears_total",
			Help:      "Number of full cache clears",
		}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_reloads_total",
			Help:      "Number of content tree reloads",
		}),
	}
}

// Resolved counts one resolution outcome.
func (m *Metrics) Resolved(kind string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind).Inc()
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// Rendered observes one render duration.
func (m *Metrics) Rendered(d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(d.Seconds())
}

// CacheCleared counts a full cache clear.
func (m *Metrics) CacheCleared() {
	if m == nil {
		return
	}
	m.cacheClears.Inc()
}

// Reloaded counts a content tree reload.
func (m *Metrics) Reloaded() {
	if m == nil {
		return
	}
	m.reloads.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
