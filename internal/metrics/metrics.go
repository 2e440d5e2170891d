// Package metrics holds the Prometheus collectors of the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reconciler"

// Metrics groups the engine collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	LedgerRequests    *prometheus.CounterVec
	LedgerLatency     *prometheus.HistogramVec
	DiscoveryFallback prometheus.Counter
	DiscoveredIDs     prometheus.Gauge
	FetchDropped      *prometheus.CounterVec
	CacheStale        *prometheus.CounterVec
	CompanionLookups  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_requests_total",
			Help:      "Ledger read requests by method and outcome.",
		}, []string{"method", "outcome"}),
		LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_request_duration_seconds",
			Help:      "Ledger read latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		DiscoveryFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_fallback_total",
			Help:      "Discovery passes served from the identifier cache after a failed event query.",
		}),
		DiscoveredIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_invoices",
			Help:      "Invoice identifiers returned by the last discovery pass.",
		}),
		FetchDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_dropped_total",
			Help:      "Invoices dropped from a result set by reason.",
		}, []string{"reason"}),
		CacheStale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_total",
			Help:      "Cached companion ids contradicted by the ledger.",
		}, []string{"kind"}),
		CompanionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companion_lookups_total",
			Help:      "Companion object resolutions by kind and source.",
		}, []string{"kind", "source"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LedgerRequests,
			m.LedgerLatency,
			m.DiscoveryFallback,
			m.DiscoveredIDs,
			m.FetchDropped,
			m.CacheStale,
			m.CompanionLookups,
		)
	}
	return m
}

// ObserveLedger records one ledger call.
func (m *Metrics) ObserveLedger(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.LedgerRequests.WithLabelValues(method, outcome).Inc()
	m.LedgerLatency.WithLabelValues(method).Observe(seconds)
}

// Fallback records a discovery pass served from cache.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.DiscoveryFallback.Inc()
}

// Discovered records the size of the last discovery result.
func (m *Metrics) Discovered(n int) {
	if m == nil {
		return
	}
	m.DiscoveredIDs.Set(float64(n))
}

// Dropped records an invoice dropped from a result set.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.FetchDropped.WithLabelValues(reason).Inc()
}

// Stale records a cache entry overwritten by ledger state.
func (m *Metrics) Stale(kind string) {
	if m == nil {
		return
	}
	m.CacheStale.WithLabelValues(kind).Inc()
}

// Companion records how a companion object was resolved.
func (m *Metrics) Companion(kind, source string) {
	if m == nil {
		return
	}
	m.CompanionLookups.WithLabelValues(kind, source).Inc()
}
