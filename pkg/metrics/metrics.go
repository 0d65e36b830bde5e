// Package metrics exposes Prometheus counters for the bridge runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Evaluations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "evaluations_total",
		Help:      "Page evaluation round-trips issued.",
	})
	EvaluationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "evaluation_retries_total",
		Help:      "Evaluations retried after a transport timeout.",
	})
	EvaluationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "evaluation_failures_total",
		Help:      "Evaluations that surfaced an error to the caller.",
	})
	Exposures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "exposed_functions_total",
		Help:      "Host functions registered in the page.",
	})
	RelayedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "relayed_events_total",
		Help:      "Outward events emitted after normalization.",
	}, []string{"event"})
	Reinjections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "reinjections_total",
		Help:      "Adapter reinjection cycles run by the supervisor.",
	})
	QRRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "qr_rotations_total",
		Help:      "QR reference rotations observed.",
	})
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wabridge",
		Name:      "connection_state",
		Help:      "Current remote connection state (1 for the active state).",
	}, []string{"state"})
)

// SetConnectionState flips the state gauge so exactly one label is hot.
func SetConnectionState(state string) {
	ConnectionState.Reset()
	ConnectionState.WithLabelValues(state).Set(1)
}
