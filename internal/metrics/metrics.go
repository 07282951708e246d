// Package metrics exposes Prometheus collectors for the listener and admin API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection outcomes used as the "result" label.
const (
	ConnAccepted = "accepted"
	ConnRejected = "rejected"
	ConnDropped  = "dropped"
)

var (
	listenerConnectionsTotal      *prometheus.CounterVec
	listenerActiveConnections     prometheus.Gauge
	listenerResponsesTotal        *prometheus.CounterVec
	listenerRequestDurationSecond *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listenerConnectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listener_connections_total",
				Help: "Total TCP connections seen by the listener, labeled by result.",
			},
			[]string{"result"},
		)

		listenerActiveConnections = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listener_active_connections",
				Help: "Connections accepted and not yet closed.",
			},
		)

		listenerResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listener_responses_total",
				Help: "Responses written by the listener, labeled by route and status.",
			},
			[]string{"route", "status"},
		)

		listenerRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listener_request_duration_seconds",
				Help:    "Time from reading the request line to finishing the response.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"route"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of admin HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveConnection counts a connection outcome.
func ObserveConnection(result string) {
	listenerConnectionsTotal.WithLabelValues(result).Inc()
}

// IncActiveConnections increments the open connections gauge.
func IncActiveConnections() {
	listenerActiveConnections.Inc()
}

// DecActiveConnections decrements the open connections gauge.
func DecActiveConnections() {
	listenerActiveConnections.Dec()
}

// ObserveResponse records a listener response and its latency.
func ObserveResponse(route string, status int, duration time.Duration) {
	listenerResponsesTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	listenerRequestDurationSecond.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the admin HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
