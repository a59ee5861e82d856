// Package metrics holds the Prometheus collectors for authentication
// outcomes and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "items_api"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Collector is a prometheus.Collector for the API.
type Collector struct {
	logins          *prometheus.CounterVec
	resolves        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector returns a new Collector. It is not registered anywhere.
func NewCollector() *Collector {
	return &Collector{
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "logins_total",
				Help:      "Token requests by outcome.",
			}, []string{"outcome"},
		),
		resolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "token_resolutions_total",
				Help:      "Bearer token resolutions by outcome.",
			}, []string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route, method and status.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method", "status"},
		),
	}
}

// Login records one token request.
func (c *Collector) Login(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// Resolve records one bearer token resolution.
func (c *Collector) Resolve(outcome string) {
	c.resolves.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (c *Collector) ObserveRequest(route, method, status string, seconds float64) {
	c.requestDuration.WithLabelValues(route, method, status).Observe(seconds)
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.logins.Describe(ch)
	c.resolves.Describe(ch)
	c.requestDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.logins.Collect(ch)
	c.resolves.Collect(ch)
	c.requestDuration.Collect(ch)
}
