package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestMetrics instruments handlers with request counters and latency
// histograms, served from its own registry.
type RequestMetrics struct {
	log       *slog.Logger
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

func NewRequestMetrics(namespace string, logger *slog.Logger) *RequestMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = "market_gateway"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "HTTP requests processed, by route, method and status.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	return &RequestMetrics{
		log:       logger.With("component", "http"),
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
}

// Instrument wraps a handler chain for one named route.
func (m *RequestMetrics) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			m.log.Debug("request served",
				"route", route,
				"method", r.Method,
				"status", recorder.status,
				"elapsed_ms", elapsed.Milliseconds())
		})
	}
}

// Handler serves the registry for scraping.
func (m *RequestMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the scrape registry so callers can attach additional
// collectors to the same endpoint.
func (m *RequestMetrics) Registry() prometheus.Registerer {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
