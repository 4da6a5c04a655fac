// Package metrics exposes the Prometheus collectors the engine publishes:
// work-unit throughput, retry/incident counts, outbox backlog/latency and
// open subscription counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	workUnitsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowlayer",
			Subsystem: "scheduler",
			Name:      "work_units_total",
			Help:      "Work units processed by the token-flow interpreter, by outcome.",
		},
		[]string{"element_type", "outcome"},
	)

	workUnitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flowlayer",
			Subsystem: "scheduler",
			Name:      "work_unit_duration_seconds",
			Help:      "Duration of a single work-unit transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"element_type"},
	)

	workUnitRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowlayer",
			Subsystem: "scheduler",
			Name:      "work_unit_retries_total",
			Help:      "Work-unit retries, by element type.",
		},
		[]string{"element_type"},
	)

	incidentsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowlayer",
			Subsystem: "scheduler",
			Name:      "incidents_total",
			Help:      "Incidents raised after exhausting the retry budget.",
		},
		[]string{"element_type", "error_kind"},
	)

	outboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flowlayer",
			Subsystem: "outbox",
			Name:      "pending_rows",
			Help:      "Number of PENDING rows in the lifecycle-event outbox.",
		},
	)

	outboxPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowlayer",
			Subsystem: "outbox",
			Name:      "publish_total",
			Help:      "Outbox publish attempts, by result.",
		},
		[]string{"result"},
	)

	outboxPublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "flowlayer",
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Duration of a single outbox publish batch.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	subscriptionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "flowlayer",
			Subsystem: "subscriptions",
			Name:      "open",
			Help:      "Open event subscriptions, by event type.",
		},
		[]string{"event_type"},
	)
)

func init() {
	Registry.MustRegister(
		workUnitsProcessed,
		workUnitDuration,
		workUnitRetries,
		incidentsRaised,
		outboxBacklog,
		outboxPublishes,
		outboxPublishDuration,
		subscriptionsOpen,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
// The engine core never listens on HTTP itself; an embedding process mounts
// this handler if it wants a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordWorkUnit records a single work-unit's outcome and duration.
func RecordWorkUnit(elementType, outcome string, d time.Duration) {
	workUnitsProcessed.WithLabelValues(elementType, outcome).Inc()
	workUnitDuration.WithLabelValues(elementType).Observe(d.Seconds())
}

// RecordWorkUnitRetry records one retry of a failed work unit.
func RecordWorkUnitRetry(elementType string) {
	workUnitRetries.WithLabelValues(elementType).Inc()
}

// RecordIncident records an incident raised after the retry budget is exhausted.
func RecordIncident(elementType, errorKind string) {
	incidentsRaised.WithLabelValues(elementType, errorKind).Inc()
}

// SetOutboxBacklog publishes the current PENDING row count.
func SetOutboxBacklog(n int) {
	outboxBacklog.Set(float64(n))
}

// RecordOutboxPublish records one publish-batch attempt.
func RecordOutboxPublish(result string, d time.Duration) {
	outboxPublishes.WithLabelValues(result).Inc()
	outboxPublishDuration.Observe(d.Seconds())
}

// SetOpenSubscriptions publishes the open-subscription gauge for one event type.
func SetOpenSubscriptions(eventType string, n int) {
	subscriptionsOpen.WithLabelValues(eventType).Set(float64(n))
}
