package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	closingsTotal   *prometheus.CounterVec
	transfersTotal  *prometheus.CounterVec
	driftTotal      prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and caja collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taller_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	closings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_caja_closings_total",
		Help: "Register closings by deviation classification.",
	}, []string{"classification"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_caja_petty_cash_transfers_total",
		Help: "Transfers from the register into petty cash by origin.",
	}, []string{"origin"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taller_caja_petty_cash_drift_total",
		Help: "Petty-cash accounts found with a balance that disagrees with their movements.",
	})
	registry.MustRegister(requests, duration, closings, transfers, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		closingsTotal:   closings,
		transfersTotal:  transfers,
		driftTotal:      drift,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records a counter and a latency sample per request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry so other packages can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveClosing counts a committed closing.
func (m *Metrics) ObserveClosing(classification string) {
	if m == nil {
		return
	}
	m.closingsTotal.WithLabelValues(classification).Inc()
}

// ObserveTransfer counts a committed petty-cash transfer.
func (m *Metrics) ObserveTransfer(origin string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(origin).Inc()
}

// AddDrift counts petty-cash accounts found out of balance.
func (m *Metrics) AddDrift(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.driftTotal.Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
