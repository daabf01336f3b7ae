// Package metrics exposes session lifecycle counters as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names used as label values.
const (
	OperationLoadUser = "load_user"
	OperationRefresh  = "refresh"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder is what the session manager reports to.
type Recorder interface {
	RecordTransition(state string)
	RecordRequest(operation string, success bool, duration time.Duration)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordTransition(string)                   {}
func (Nop) RecordRequest(string, bool, time.Duration) {}

// Collector records to Prometheus.
type Collector struct {
	transitions *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_transitions_total",
			Help: "Session state transitions by destination state",
		}, []string{"state"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_requests_total",
			Help: "Auth service requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authsession_request_duration_seconds",
			Help:    "Auth service request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(c.transitions, c.requests, c.latency)
	return c
}

func (c *Collector) RecordTransition(state string) {
	c.transitions.WithLabelValues(state).Inc()
}

func (c *Collector) RecordRequest(operation string, success bool, duration time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	c.requests.WithLabelValues(operation, outcome).Inc()
	c.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
