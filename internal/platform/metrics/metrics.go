package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	CommandsProcessed    *prometheus.CounterVec
	CommandsRejected     *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter
	AppendRetries        prometheus.Counter
	CommandLatency       prometheus.Histogram
	EventsPublished      prometheus.Counter
	EventsDelivered      prometheus.Counter
	SubscribersDropped   prometheus.Counter
	ActiveSubscriptions  prometheus.Gauge
	OutboxRelayed        prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CommandsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_commands_processed_total",
			Help: "Commands successfully committed, by aggregate type.",
		}, []string{"aggregate_type"}),
		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskstream_commands_rejected_total",
			Help: "Commands rejected before commit, by error code.",
		}, []string{"code"}),
		ConcurrencyConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_concurrency_conflicts_total",
			Help: "Commands that lost an optimistic concurrency race.",
		}),
		AppendRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_append_retries_total",
			Help: "Transparent retries of transient event log failures.",
		}),
		CommandLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskstream_command_duration_seconds",
			Help:    "End-to-end command processing latency.",
			Buckets: prometheus.DefBuckets,
		}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_events_published_total",
			Help: "Committed events handed to the broadcast dispatcher.",
		}),
		EventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_events_delivered_total",
			Help: "Events enqueued to subscriber push channels.",
		}),
		SubscribersDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_subscribers_dropped_total",
			Help: "Subscriptions torn down because their buffer saturated.",
		}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "taskstream_active_subscriptions",
			Help: "Currently registered topic subscriptions.",
		}),
		OutboxRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskstream_outbox_relayed_total",
			Help: "Outbox rows published to Kafka by the relay.",
		}),
	}
}
