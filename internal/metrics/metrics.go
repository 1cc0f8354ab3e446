// Package metrics holds the prometheus collectors of the document engine.
//
// Every method is safe on a nil *Metrics, so components take an optional
// *Metrics and record unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pardoc"

	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeCached = "cached"
)

// Metrics groups the engine collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// operations counts document operations.
	// Labels: op (add, insert, modify, delete, update, ...), outcome (ok, error)
	operations *prometheus.CounterVec

	// operationLatency measures document operations including lock wait.
	// Labels: op
	operationLatency *prometheus.HistogramVec

	// versions counts written versions.
	// Labels: kind (major, minor)
	versions *prometheus.CounterVec

	// resolutions counts reference resolutions.
	// Labels: outcome (ok, error, cached)
	resolutions *prometheus.CounterVec

	resolveLatency prometheus.Histogram

	// mergeChanges counts paragraphs touched by text updates.
	// Labels: change (added, changed, deleted)
	mergeChanges *prometheus.CounterVec

	lockWait prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "operations_total",
			Help:      "Document operations by kind and outcome",
		}, []string{"op", "outcome"}),
		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "operation_duration_seconds",
			Help:      "Document operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		versions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "versions_total",
			Help:      "Written document versions by kind",
		}, []string{"kind"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Reference resolutions by outcome",
		}, []string{"outcome"}),
		resolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Uncached reference resolution latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		mergeChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "paragraphs_total",
			Help:      "Paragraphs touched by text updates",
		}, []string{"change"}),
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a document lock",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// OperationDone records one finished document operation.
func (m *Metrics) OperationDone(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.operationLatency.WithLabelValues(op).Observe(d.Seconds())
}

// VersionWritten records a new document version.
func (m *Metrics) VersionWritten(structural bool) {
	if m == nil {
		return
	}
	kind := "minor"
	if structural {
		kind = "major"
	}
	m.versions.WithLabelValues(kind).Inc()
}

// ReferenceResolved records one resolution. d is ignored for cached results.
func (m *Metrics) ReferenceResolved(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCached {
		m.resolveLatency.Observe(d.Seconds())
	}
}

// MergeApplied records the paragraphs touched by one text update.
func (m *Metrics) MergeApplied(added, changed, deleted int) {
	if m == nil {
		return
	}
	m.mergeChanges.WithLabelValues("added").Add(float64(added))
	m.mergeChanges.WithLabelValues("changed").Add(float64(changed))
	m.mergeChanges.WithLabelValues("deleted").Add(float64(deleted))
}

// LockWaited records how long a document lock took to acquire.
func (m *Metrics) LockWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// WriteTextfile writes every collector to path in the text exposition
// format, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
