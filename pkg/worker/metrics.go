package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the worker's Prometheus series.
type Metrics struct {
	// StateChanges counts every state.name mutation.
	StateChanges *prometheus.CounterVec
	// TurnDuration observes end-to-end turn latency.
	TurnDuration prometheus.Histogram
	// Consumed counts broker deliveries per queue and outcome.
	Consumed *prometheus.CounterVec
	// Published counts broker publications per routing key.
	Published *prometheus.CounterVec
}

// NewMetrics registers the worker series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "state_change",
			Help: "Dialog state transitions.",
		}, []string{"from_state", "to_state"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Latency of one dialog turn, decode to ack.",
			Buckets: prometheus.DefBuckets,
		}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Broker deliveries by queue and outcome.",
		}, []string{"queue", "outcome"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_messages_published_total",
			Help: "Broker publications by routing key.",
		}, []string{"routing_key"}),
	}

	reg.MustRegister(m.StateChanges, m.TurnDuration, m.Consumed, m.Published)
	return m
}
