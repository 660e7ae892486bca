// Package metrics exposes the service's Prometheus instrumentation:
// operation counts and latencies, error counts by code, byte throughput,
// and gauges for live sessions and watch subscriptions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the metric families. A nil *Collector is a valid no-op,
// so call sites never need to guard on metrics being enabled.
type Collector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	bytesRead  prometheus.Counter
	bytesWrite prometheus.Counter

	streamSessions prometheus.Gauge
	watchSubs      prometheus.Gauge
}

// NewCollector builds and registers the metric families.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tierfs",
			Name:      "operations_total",
			Help:      "Filesystem operations by name and surface.",
		}, []string{"surface", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tierfs",
			Name:      "errors_total",
			Help:      "Failed operations by error code.",
		}, []string{"surface", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tierfs",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency by name and surface.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"surface", "op"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tierfs",
			Name:      "bytes_read_total",
			Help:      "Content bytes served to clients.",
		}),
		bytesWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tierfs",
			Name:      "bytes_written_total",
			Help:      "Content bytes accepted from clients.",
		}),
		streamSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tierfs",
			Name:      "stream_sessions",
			Help:      "Live chunked transfer sessions.",
		}),
		watchSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tierfs",
			Name:      "watch_subscriptions",
			Help:      "Live watch subscriptions.",
		}),
	}
	c.registry.MustRegister(
		c.operations, c.errors, c.latency,
		c.bytesRead, c.bytesWrite,
		c.streamSessions, c.watchSubs,
	)
	return c
}

// Handler serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Operation records one completed operation.
func (c *Collector) Operation(surface, op string, d time.Duration, errCode string) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(surface, op).Inc()
	c.latency.WithLabelValues(surface, op).Observe(d.Seconds())
	if errCode != "" {
		c.errors.WithLabelValues(surface, errCode).Inc()
	}
}

// ReadBytes adds to the served-bytes counter.
func (c *Collector) ReadBytes(n int) {
	if c == nil {
		return
	}
	c.bytesRead.Add(float64(n))
}

// WriteBytes adds to the accepted-bytes counter.
func (c *Collector) WriteBytes(n int) {
	if c == nil {
		return
	}
	c.bytesWrite.Add(float64(n))
}

// StreamSessions moves the live-session gauge.
func (c *Collector) StreamSessions(delta int) {
	if c == nil {
		return
	}
	c.streamSessions.Add(float64(delta))
}

// SetWatchSubscriptions sets the subscription gauge.
func (c *Collector) SetWatchSubscriptions(n int) {
	if c == nil {
		return
	}
	c.watchSubs.Set(float64(n))
}
