package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	routeDecisions *prometheus.CounterVec
	routeDuration  *prometheus.HistogramVec
	sentinelTotal  prometheus.Counter
	backendResults *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	breakerTrips   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "agri",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "agri",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "agri",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "agri",
			Subsystem:   "http",
			Name:        "rejected_total",
			Help:        "Requests shed by traffic control, by reason.",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)
	routeDecisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Questions routed, by route.",
		},
		[]string{"route"},
	)
	routeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agri",
			Subsystem: "router",
			Name:      "duration_seconds",
			Help:      "Time to produce a fused answer, by route.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60},
		},
		[]string{"route"},
	)
	sentinelTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "router",
			Name:      "sentinel_total",
			Help:      "Questions answered with the no-answer sentinel.",
		},
	)
	backendResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "router",
			Name:      "backend_results_total",
			Help:      "Backend outcomes per routed question.",
		},
		[]string{"backend", "outcome"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agri",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"operation"},
	)
	breakerTrips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "breaker",
			Name:      "open_total",
			Help:      "Transitions into the open state per operation.",
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		routeDecisions,
		routeDuration,
		sentinelTotal,
		backendResults,
		breakerState,
		breakerTrips,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		rejectedTotal:   rejectedTotal,
		routeDecisions:  routeDecisions,
		routeDuration:   routeDuration,
		sentinelTotal:   sentinelTotal,
		backendResults:  backendResults,
		breakerState:    breakerState,
		breakerTrips:    breakerTrips,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds ids out of paths to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/sessions/") && strings.HasSuffix(path, "/history"):
		return "/v1/sessions/{session_id}/history"
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *HTTPServerMetrics) ObserveRoute(route domain.Route, duration time.Duration, sentinel bool) {
	m.routeDecisions.WithLabelValues(route.String()).Inc()
	m.routeDuration.WithLabelValues(route.String()).Observe(duration.Seconds())
	if sentinel {
		m.sentinelTotal.Inc()
	}
}

func (m *HTTPServerMetrics) ObserveBackend(backend, outcome string) {
	m.backendResults.WithLabelValues(backend, outcome).Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) ObserveBreakerState(operation string, _ gobreaker.State, to gobreaker.State) {
	m.breakerState.WithLabelValues(operation).Set(float64(to))
	if to == gobreaker.StateOpen {
		m.breakerTrips.WithLabelValues(operation).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
