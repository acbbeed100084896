package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine.
type Metrics struct {
	TasksInFlight     prometheus.Gauge
	TaskOutcomes      *prometheus.CounterVec
	PollCycles        *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	TaskSettleLatency prometheus.Histogram

	window *cycleWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TasksInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of dispatched backend tasks awaiting completion.",
		}),
		TaskOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Settled tasks by type and result.",
		}, []string{"type", "result"}),
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Monitor cycles by kind and result.",
		}, []string{"kind", "result"}),
		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications created by severity.",
		}, []string{"severity"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active client sessions.",
		}),
		TaskSettleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_settle_latency_seconds",
			Help:      "Time from task dispatch to settled outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		window: newCycleWindow(256),
	}
}

func (m *Metrics) ObserveTaskSettled(taskType, result string, d time.Duration) {
	m.TaskOutcomes.WithLabelValues(taskType, result).Inc()
	m.TaskSettleLatency.Observe(d.Seconds())
}

func (m *Metrics) ObservePollCycle(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.window.ObserveIndicator(kind + "_failure")
	}
	m.PollCycles.WithLabelValues(kind, result).Inc()
	m.window.Observe(kind, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveIndicator(name string) {
	m.window.ObserveIndicator(name)
}

func (m *Metrics) SnapshotCycles() CycleSnapshot {
	return m.window.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
