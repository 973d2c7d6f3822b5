package engine

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments published by a Client.
// All methods are nil-safe so instrumentation stays optional.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	retries   prometheus.Counter
	refreshes prometheus.Counter
	polls     prometheus.Counter
}

// NewMetrics builds the instrument set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonclient",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "anonclient",
			Name:      "request_duration_seconds",
			Help:      "Logical call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anonclient",
			Name:      "retries_total",
			Help:      "Retried attempts after transport failures.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anonclient",
			Name:      "auth_refreshes_total",
			Help:      "Credential refreshes triggered by expiry responses.",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anonclient",
			Name:      "job_polls_total",
			Help:      "Status polls issued while waiting on jobs.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.retries, m.refreshes, m.polls)
	return m
}

func (m *Metrics) observeRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) incRetries() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) incRefreshes() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}

func (m *Metrics) incPolls() {
	if m == nil {
		return
	}
	m.polls.Inc()
}
