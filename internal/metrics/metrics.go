package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reedcraft"

// Metrics holds the bot's Prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	archiveBytes prometheus.Histogram
	pruned       prometheus.Counter
	commands     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "operations_total",
			Help:      "Snapshot operations by action and final status.",
		}, []string{"action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of snapshot operations including user prompts.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"action"}),
		archiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "archive_size_bytes",
			Help:      "Size of created snapshot archives.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "pruned_records_total",
			Help:      "Catalog records removed because their archive was missing.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands received by name and outcome.",
		}, []string{"command", "outcome"}),
	}
	m.registry.MustRegister(
		m.operations, m.duration, m.archiveBytes, m.pruned, m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveOperation(action, status string, elapsed time.Duration) {
	m.operations.WithLabelValues(action, status).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveArchiveSize(bytes int64) {
	m.archiveBytes.Observe(float64(bytes))
}

func (m *Metrics) AddPruned(n int) {
	m.pruned.Add(float64(n))
}

// CommandHandled counts a chat command; outcome is ok, denied or error.
func (m *Metrics) CommandHandled(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
