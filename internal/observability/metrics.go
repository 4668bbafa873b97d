package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the ledger processes. It
// satisfies the Recorder interfaces of the accounts and vouchers services.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	vouchersCreated    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	cascadedAccounts   prometheus.Counter
	integrity          *prometheus.GaugeVec
}

// NewMetrics builds a private registry with the ledger and ops collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_ops_http_requests_total",
		Help: "Ops HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_ops_http_request_duration_seconds",
		Help:    "Ops HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_vouchers_created_total",
		Help: "Vouchers created by voucher type prefix.",
	}, []string{"prefix"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_validation_failures_total",
		Help: "Rejected ledger mutations by operation.",
	}, []string{"operation"})
	cascaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_cascade_accounts_total",
		Help: "Accounts turned inactive by a parent cascade.",
	})
	integrity := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_integrity_violations",
		Help: "Violations found by the last integrity run by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, created, failures, cascaded, integrity,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		vouchersCreated:    created,
		validationFailures: failures,
		cascadedAccounts:   cascaded,
		integrity:          integrity,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and duration of every request.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// VoucherCreated counts a new voucher.
func (m *Metrics) VoucherCreated(prefix string) {
	if m == nil {
		return
	}
	m.vouchersCreated.WithLabelValues(prefix).Inc()
}

// ValidationFailed counts a rejected mutation.
func (m *Metrics) ValidationFailed(operation string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(operation).Inc()
}

// AccountsCascaded adds n cascaded accounts.
func (m *Metrics) AccountsCascaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cascadedAccounts.Add(float64(n))
}

// SetIntegrityViolations replaces the gauge values with counts. Kinds missing
// from counts are dropped from the export.
func (m *Metrics) SetIntegrityViolations(counts map[string]int) {
	if m == nil {
		return
	}
	m.integrity.Reset()
	for kind, n := range counts {
		m.integrity.WithLabelValues(kind).Set(float64(n))
	}
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
