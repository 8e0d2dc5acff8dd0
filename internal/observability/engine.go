package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes recorded by EngineMetrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStale   = "stale"
	OutcomeSkipped = "skipped"
)

// EngineMetrics exposes collectors for the search engine, the pipeline
// resolver and the invalidation listener. A nil *EngineMetrics is valid and
// records nothing.
type EngineMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

var (
	defaultEngineOnce    sync.Once
	defaultEngineMetrics *EngineMetrics
)

// NewEngineMetrics registers the engine metrics against registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		defaultEngineOnce.Do(func() {
			defaultEngineMetrics = buildEngineMetrics(prometheus.DefaultRegisterer)
		})
		return defaultEngineMetrics
	}
	return buildEngineMetrics(registerer)
}

// Tracker instruments a single remote operation.
type Tracker struct {
	metrics *EngineMetrics
	op      string
	start   time.Time
}

// Track starts a tracker for op.
func (m *EngineMetrics) Track(op string) *Tracker {
	return &Tracker{metrics: m, op: op, start: time.Now()}
}

// End records the duration and success or failure of the operation and
// returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	t.metrics.operations.WithLabelValues(t.op, outcome).Inc()
	t.metrics.duration.WithLabelValues(t.op).Observe(time.Since(t.start).Seconds())
	return err
}

// Discard records a response that arrived after a newer one had settled.
func (t *Tracker) Discard() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.operations.WithLabelValues(t.op, OutcomeStale).Inc()
}

// Skipped records an operation that was not dispatched.
func (m *EngineMetrics) Skipped(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, OutcomeSkipped).Inc()
}

// Event counts a push message by kind ("created", "updated", "other",
// "malformed").
func (m *EngineMetrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func buildEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enduro_dash_operations_total",
		Help: "Remote operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enduro_dash_operation_duration_seconds",
		Help:    "Duration in seconds of settled remote operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enduro_dash_push_events_total",
		Help: "Push channel messages received, partitioned by kind.",
	}, []string{"kind"})
	registerer.MustRegister(operations, duration, events)
	return &EngineMetrics{operations: operations, duration: duration, events: events}
}
