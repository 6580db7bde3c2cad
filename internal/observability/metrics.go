package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	allocationsTotal   *prometheus.CounterVec
	stockRejections    *prometheus.CounterVec
	transfersTotal     prometheus.Counter
	receiptsTotal      prometheus.Counter
	snapshotRowsStored prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ma3mora_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ma3mora_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ma3mora_ledger_allocations_total",
		Help: "Stock allocations by outcome.",
	}, []string{"outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ma3mora_ledger_insufficient_stock_total",
		Help: "Operations rejected for insufficient stock, by operation.",
	}, []string{"op"})
	transfers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ma3mora_ledger_transfers_total",
		Help: "Committed inter-warehouse transfers.",
	})
	receipts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ma3mora_ledger_receipts_total",
		Help: "Posted procurement receipts.",
	})
	snapshotRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ma3mora_movement_snapshot_rows_total",
		Help: "Daily movement rows materialised by reconciliation.",
	})
	registry.MustRegister(requests, duration, allocations, rejections, transfers, receipts, snapshotRows)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		allocationsTotal:   allocations,
		stockRejections:    rejections,
		transfersTotal:     transfers,
		receiptsTotal:      receipts,
		snapshotRowsStored: snapshotRows,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
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

// ObserveAllocation counts an allocation attempt by outcome ("ok" or "rejected").
func (m *Metrics) ObserveAllocation(outcome string) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveInsufficientStock counts a rejection for the given operation.
func (m *Metrics) ObserveInsufficientStock(op string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(op).Inc()
}

// ObserveTransfer counts a committed transfer.
func (m *Metrics) ObserveTransfer() {
	if m == nil {
		return
	}
	m.transfersTotal.Inc()
}

// ObserveReceipt counts a posted receipt.
func (m *Metrics) ObserveReceipt() {
	if m == nil {
		return
	}
	m.receiptsTotal.Inc()
}

// ObserveSnapshotRows counts movement rows materialised by a reconciliation run.
func (m *Metrics) ObserveSnapshotRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotRowsStored.Add(float64(n))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
