package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters the resilience services report into. All
// methods are nil-safe so services can run without telemetry attached.
type Metrics struct {
	limitChecks *prometheus.CounterVec
	cacheReads  *prometheus.CounterVec
	syncOps     *prometheus.CounterVec
	drains      prometheus.Counter
}

// Attach registers the layer's metrics on the default registry.
func Attach(namespace string) *Metrics {
	if namespace == "" {
		namespace = "offline"
	}

	return &Metrics{
		limitChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_checks_total",
			Help:      "Rate limit checks by outcome (allowed, denied, fault).",
		}, []string{"outcome"}),
		cacheReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reads_total",
			Help:      "Cache reads by outcome (hit, miss, expired, fault).",
		}, []string{"outcome"}),
		syncOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Sync queue operations by result (applied, retried, dropped).",
		}, []string{"result"}),
		drains: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_drain_passes_total",
			Help:      "Completed drain passes over the sync queue.",
		}),
	}
}

// LimitCheck records a rate limit check outcome.
func (m *Metrics) LimitCheck(outcome string) {
	if m == nil {
		return
	}
	m.limitChecks.WithLabelValues(outcome).Inc()
}

// CacheRead records a cache read outcome.
func (m *Metrics) CacheRead(outcome string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(outcome).Inc()
}

// SyncOperation records the result of processing one queued operation.
func (m *Metrics) SyncOperation(result string) {
	if m == nil {
		return
	}
	m.syncOps.WithLabelValues(result).Inc()
}

// DrainPass records a completed drain pass.
func (m *Metrics) DrainPass() {
	if m == nil {
		return
	}
	m.drains.Inc()
}
