package metric

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webdock"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseBytes   *prometheus.CounterVec

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Rejected or failed requests
	MalformedRequests prometheus.Counter
	RateLimited       prometheus.Counter
	Panics            prometheus.Counter

	// Storage metrics
	StoreOps        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with every webdock metric plus the Go
// runtime and process collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests served, by handler, method and status code.",
		}, []string{"handler", "method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent producing a response, by handler.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}, []string{"handler"}),
		ResponseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_body_bytes_total",
			Help:      "Response body bytes produced, by handler.",
		}, []string{"handler"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections accepted since start.",
		}),
		MalformedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_requests_total",
			Help:      "Requests rejected by the wire codec.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-client rate limit.",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Handler panics recovered into 500 responses.",
		}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Resource store operations, by operation, namespace and result.",
		}, []string{"op", "namespace", "result"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Resource store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op", "namespace"}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.ResponseBytes,
		r.ConnectionsActive,
		r.ConnectionsTotal,
		r.MalformedRequests,
		r.RateLimited,
		r.Panics,
		r.StoreOps,
		r.StoreOpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(),
	)
	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Registerer exposes the underlying registry for components that register
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// ObserveRequest records one served request.
func (r *Registry) ObserveRequest(handler, method string, status, bodyBytes int, elapsed time.Duration) {
	r.RequestsTotal.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	r.RequestDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
	r.ResponseBytes.WithLabelValues(handler).Add(float64(bodyBytes))
}

// ObserveStoreOp records one resource store operation.
func (r *Registry) ObserveStoreOp(op, namespace, result string, elapsed time.Duration) {
	r.StoreOps.WithLabelValues(op, namespace, result).Inc()
	r.StoreOpDuration.WithLabelValues(op, namespace).Observe(elapsed.Seconds())
}

// ConnOpened records an accepted connection.
func (r *Registry) ConnOpened() {
	r.ConnectionsTotal.Inc()
	r.ConnectionsActive.Inc()
}

// ConnClosed records a closed connection.
func (r *Registry) ConnClosed() {
	r.ConnectionsActive.Dec()
}

// Malformed records a request rejected by the codec.
func (r *Registry) Malformed() {
	r.MalformedRequests.Inc()
}

// Limited records a rate-limited request.
func (r *Registry) Limited() {
	r.RateLimited.Inc()
}

// Panicked records a recovered handler panic.
func (r *Registry) Panicked() {
	r.Panics.Inc()
}

// Handler returns an HTTP handler serving r in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
