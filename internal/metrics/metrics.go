// Package metrics registers the producer's Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "mq_producer"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the producer-side collectors. A nil *Metrics is valid and
// records nothing, so instrumentation call sites need no guards.
type Metrics struct {
	sends        *prometheus.CounterVec
	sendAttempts prometheus.Histogram
	rpcCalls     *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	rpcInFlight  prometheus.Gauge
	isolated     prometheus.Gauge
	routeFetches *prometheus.CounterVec
}

// New creates a Metrics instance and registers all collectors with the
// provided registerer. Returns an error if any registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sends_total",
			Help:      "Total message sends by outcome",
		}, []string{"status"}),
		sendAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "send_attempts",
			Help:      "RPC attempts consumed per message send",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		isolated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "isolated_endpoints",
			Help:      "Broker endpoints currently isolated",
		}),
		routeFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "route_fetches_total",
			Help:      "Topic route fetches by status",
		}, []string{"status"}),
	}

	err := errors.Join(
		reg.Register(m.sends),
		reg.Register(m.sendAttempts),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.isolated),
		reg.Register(m.routeFetches),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordSend records the outcome of one message send and the attempts it consumed.
func (m *Metrics) RecordSend(err error, attempts int) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(statusOf(err)).Inc()
	m.sendAttempts.Observe(float64(attempts))
}

// RecordRPC records one RPC call outcome.
func (m *Metrics) RecordRPC(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, statusOf(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// SetIsolatedEndpoints updates the isolation gauge.
func (m *Metrics) SetIsolatedEndpoints(n int) {
	if m == nil {
		return
	}
	m.isolated.Set(float64(n))
}

// RecordRouteFetch records a topic route fetch outcome.
func (m *Metrics) RecordRouteFetch(err error) {
	if m == nil {
		return
	}
	m.routeFetches.WithLabelValues(statusOf(err)).Inc()
}
