package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "comments"

// Outcome labels for processed queue tasks.
const (
	OutcomeDone    = "done"
	OutcomeRetried = "retried"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Metrics holds the Prometheus collectors shared by the socket server,
// the dispatcher and the queue consumers.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	Broadcasts        prometheus.Counter
	SendFailures      prometheus.Counter
	TasksEnqueued     *prometheus.CounterVec
	TasksProcessed    *prometheus.CounterVec
	DeliveriesDropped prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "active_connections",
			Help:      "Number of live socket connections in the registry.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts sent to the registry.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "send_failures_total",
			Help:      "Total number of per-connection send failures.",
		}),
		TasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks enqueued, by queue.",
		}, []string{"queue"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks processed, by queue and outcome.",
		}, []string{"queue", "outcome"}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "Total number of broadcast tasks dropped because no socket server was running.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.Broadcasts,
		m.SendFailures,
		m.TasksEnqueued,
		m.TasksProcessed,
		m.DeliveriesDropped,
	)
	return m
}

// NewUnregistered returns collectors that are not exposed anywhere.
// Used by tests and by commands that do not serve /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
