package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge
type Metrics struct {
	// Handle metrics
	HandlesCreated  prometheus.Counter
	HandlesDisposed prometheus.Counter

	// Identity map metrics
	MapEntries *prometheus.GaugeVec

	// Marshalling metrics
	FunctionsProjected prometheus.Counter
	HostCalls          *prometheus.CounterVec
	HostCallDuration   *prometheus.HistogramVec
	Wraps              *prometheus.CounterVec

	// Script metrics
	Evals        *prometheus.CounterVec
	EvalDuration prometheus.Histogram

	// Snapshot for quick summaries without a scrape
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for log summaries
type Snapshot struct {
	HandlesCreated  int64
	HandlesDisposed int64
	HostCalls       int64
	HostCallErrors  int64
	Evals           int64
	EvalErrors      int64
}

// NewMetrics creates a metrics collector registered against reg.
// A nil registerer registers against the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HandlesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vmsync_handles_created_total",
				Help: "Total number of VM handles issued",
			},
		),
		HandlesDisposed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vmsync_handles_disposed_total",
				Help: "Total number of VM handles disposed",
			},
		),
		MapEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmsync_identity_map_entries",
				Help: "Entries currently stored in an identity map",
			},
			[]string{"arena"},
		),
		FunctionsProjected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vmsync_functions_projected_total",
				Help: "Total number of host functions projected into a VM",
			},
		),
		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmsync_host_calls_total",
				Help: "Total number of VM to host callback invocations",
			},
			[]string{"function", "status"},
		),
		HostCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vmsync_host_call_duration_seconds",
				Help:    "VM to host callback duration in seconds",
				Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"function"},
		),
		Wraps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmsync_wraps_total",
				Help: "Total number of values wrapped for pass-by-reference",
			},
			[]string{"side"},
		),
		Evals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmsync_evals_total",
				Help: "Total number of script evaluations",
			},
			[]string{"status"},
		),
		EvalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vmsync_eval_duration_seconds",
				Help:    "Script evaluation duration in seconds",
				Buckets: []float64{.0001, .001, .01, .1, 1, 5, 10},
			},
		),
	}
}

// IncHandlesCreated records a newly issued handle
func (m *Metrics) IncHandlesCreated() {
	if m == nil {
		return
	}
	m.HandlesCreated.Inc()
	m.mu.Lock()
	m.snapshot.HandlesCreated++
	m.mu.Unlock()
}

// IncHandlesDisposed records a disposed handle
func (m *Metrics) IncHandlesDisposed() {
	if m == nil {
		return
	}
	m.HandlesDisposed.Inc()
	m.mu.Lock()
	m.snapshot.HandlesDisposed++
	m.mu.Unlock()
}

// SetMapEntries sets the identity map size for an arena
func (m *Metrics) SetMapEntries(arena string, count int) {
	if m == nil {
		return
	}
	m.MapEntries.WithLabelValues(arena).Set(float64(count))
}

// DeleteMapEntries drops the gauge for a disposed arena
func (m *Metrics) DeleteMapEntries(arena string) {
	if m == nil {
		return
	}
	m.MapEntries.DeleteLabelValues(arena)
}

// IncFunctionsProjected records a host function projection
func (m *Metrics) IncFunctionsProjected() {
	if m == nil {
		return
	}
	m.FunctionsProjected.Inc()
}

// RecordHostCall records a VM to host callback
func (m *Metrics) RecordHostCall(function, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(function, status).Inc()
	m.HostCallDuration.WithLabelValues(function).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.HostCalls++
	if status != StatusOK {
		m.snapshot.HostCallErrors++
	}
	m.mu.Unlock()
}

// IncWraps records a wrap on the given side ("host" or "vm")
func (m *Metrics) IncWraps(side string) {
	if m == nil {
		return
	}
	m.Wraps.WithLabelValues(side).Inc()
}

// RecordEval records a script evaluation
func (m *Metrics) RecordEval(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Evals.WithLabelValues(status).Inc()
	m.EvalDuration.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Evals++
	if status != StatusOK {
		m.snapshot.EvalErrors++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the running totals
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Status labels
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Status maps an error to a status label
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
