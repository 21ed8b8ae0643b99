package boardapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// subscriberCounter is the subset of broker.Broker the metrics set reads
// to publish live gauges without importing the broker package's full API.
type subscriberCounter interface {
	SubscriberCount() int64
	DroppedCount() int64
}

// metricsSet holds the Prometheus collectors the HTTP boundary exposes at
// /metrics, grounded on the domain-stack wiring that pulls
// prometheus/client_golang into the board API the way kubernaut
// instruments its own reconcile loop.
type metricsSet struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetricsSet() *metricsSet {
	reg := prometheus.NewRegistry()
	m := &metricsSet{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ateam_http_requests_total",
			Help: "Total HTTP requests handled by the orchestration kernel.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ateam_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// wireBroker registers gauges sourced live from the event broker's atomic
// counters. newMetricsSet takes no broker; New calls wireBroker with
// Config.Broker right after building the set.
func (m *metricsSet) wireBroker(b subscriberCounter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ateam_event_broker_subscribers",
			Help: "Current number of open event-stream subscriptions.",
		}, func() float64 { return float64(b.SubscriberCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ateam_event_broker_dropped_subscribers_total",
			Help: "Cumulative subscribers closed under the drop-slow-subscriber policy.",
		}, func() float64 { return float64(b.DroppedCount()) }),
	)
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (m *metricsSet) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
