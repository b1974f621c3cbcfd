// Package metrics holds the prometheus collectors shared by every service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/video-platform/internal/feed"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	FeedPageDuration *prometheus.HistogramVec
	FeedPageItems    *prometheus.HistogramVec
	FeedPageErrors   *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry labelled with service.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg))

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		FeedPageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_page_duration_seconds",
				Help:    "Time to assemble one feed page including aggregates",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"resource"},
		),
		FeedPageItems: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_page_items",
				Help:    "Number of items returned per feed page",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
			[]string{"resource"},
		),
		FeedPageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_page_errors_total",
				Help: "Feed page failures by kind",
			},
			[]string{"resource", "kind"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		EventsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_processed_total",
				Help: "Messages handled by background workers",
			},
			[]string{"subject", "result"},
		),
	}
}

// ObservePage implements feed.Observer.
func (m *Metrics) ObservePage(resource string, items int, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.FeedPageDuration.WithLabelValues(resource).Observe(took.Seconds())
	if err == nil {
		m.FeedPageItems.WithLabelValues(resource).Observe(float64(items))
		return
	}
	kind := "store"
	switch {
	case errors.Is(err, feed.ErrInvalidRequest):
		kind = "validation"
	case errors.Is(err, feed.ErrUnauthorized):
		kind = "unauthorized"
	}
	m.FeedPageErrors.WithLabelValues(resource, kind).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and push-style exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Route returns the matched chi route pattern, or "unmatched". Labelling by
// pattern keeps ids out of series names.
func Route(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return "unmatched"
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := Route(r)
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
