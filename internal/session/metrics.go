package session

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gameboost/internal/primitive"
)

// Metrics holds the session's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	State             prometheus.Gauge
	SuspendedProcs    prometheus.Gauge
	AppliedTweaks     prometheus.Gauge
	Transitions       *prometheus.CounterVec // operation, result
	PrimitiveFailures *prometheus.CounterVec // op, reason
	Duration          *prometheus.HistogramVec
	TrimmedProcesses  prometheus.Counter
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		State: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameboost_session_state",
			Help: "Current session state (0=inactive, 1=activating, 2=active, 3=deactivating)",
		}),
		SuspendedProcs: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameboost_session_suspended_processes",
			Help: "Processes currently held suspended by the session",
		}),
		AppliedTweaks: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameboost_session_ledger_entries",
			Help: "Reversible tweaks currently recorded in the ledger",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameboost_session_transitions_total",
			Help: "Activate/deactivate calls by outcome",
		}, []string{"operation", "result"}),
		PrimitiveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameboost_primitive_failures_total",
			Help: "Failed primitive calls by operation and reason",
		}, []string{"op", "reason"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gameboost_session_operation_duration_seconds",
			Help:    "Wall time of activate/deactivate passes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation"}),
		TrimmedProcesses: f.NewCounter(prometheus.CounterOpts{
			Name: "gameboost_memory_trimmed_processes_total",
			Help: "Processes whose working set was emptied",
		}),
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}

func (m *Metrics) setCounts(suspended, ledger int) {
	if m == nil {
		return
	}
	m.SuspendedProcs.Set(float64(suspended))
	m.AppliedTweaks.Set(float64(ledger))
}

func (m *Metrics) transition(op, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observe(op string, started time.Time) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) primitiveFailure(err error) {
	if m == nil || err == nil {
		return
	}
	op := "unknown"
	var f *primitive.Failure
	if errors.As(err, &f) {
		op = f.Op.String()
	}
	m.PrimitiveFailures.WithLabelValues(op, primitive.ReasonOf(err).String()).Inc()
}

func (m *Metrics) trimmed(n int) {
	if m == nil {
		return
	}
	m.TrimmedProcesses.Add(float64(n))
}
