package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Webhook reconciliation metrics
	WebhookEventsTotal    *prometheus.CounterVec
	WebhookEventDuration  *prometheus.HistogramVec
	WebhookDuplicateTotal *prometheus.CounterVec

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Payment URL cache metrics
	URLCacheHits   *prometheus.CounterVec
	URLCacheMisses *prometheus.CounterVec
	URLCachePurged prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all Prometheus metrics
func New(namespace string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Webhook deliveries by event type and result",
			},
			[]string{"provider", "event_type", "result"},
		),
		WebhookEventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_event_duration_seconds",
				Help:      "Webhook reconciliation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "event_type"},
		),
		WebhookDuplicateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_duplicates_total",
				Help:      "Webhook deliveries rejected by the dedup store",
			},
			[]string{"provider", "event_type"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Outbound payment provider calls by operation and result",
			},
			[]string{"provider", "operation", "result"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Outbound payment provider call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		URLCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_url_cache_hits_total",
				Help:      "Payment URL cache hits",
			},
			[]string{"type"},
		),
		URLCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_url_cache_misses_total",
				Help:      "Payment URL cache misses",
			},
			[]string{"type"},
		),
		URLCachePurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_url_cache_purged_total",
				Help:      "Payment URL cache rows removed by the sweep",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookEventDuration,
		m.WebhookDuplicateTotal,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.URLCacheHits,
		m.URLCacheMisses,
		m.URLCachePurged,
	)

	return m
}

// Handler returns the HTTP handler for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latency.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
