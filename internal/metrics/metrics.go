// Package metrics exposes Prometheus instrumentation for the HTTP server,
// the ledger and the mirror worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "iptvprofit"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	mutations    *prometheus.CounterVec
	rateLimited  prometheus.Counter
	records      *prometheus.GaugeVec
	netProfit    prometheus.Gauge
	mirrorSyncs  *prometheus.CounterVec
	mirrorTime   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mutations_total",
			Help:      "Ledger create, update and delete attempts by outcome",
		}, []string{"kind", "action", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_records",
			Help:      "Records seen in the latest snapshot",
		}, []string{"kind"}),
		netProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_net_profit",
			Help:      "Net profit of the latest snapshot",
		}),
		mirrorSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_syncs_total",
			Help:      "Spreadsheet mirror rewrites by outcome",
		}, []string{"outcome"}),
		mirrorTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_sync_duration_seconds",
			Help:      "Duration of spreadsheet mirror rewrites",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.mutations,
		m.rateLimited,
		m.records,
		m.netProfit,
		m.mirrorSyncs,
		m.mirrorTime,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		// ServeMux fills in Pattern on the way down.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordMutation(kind, action, outcome string) {
	m.mutations.WithLabelValues(kind, action, outcome).Inc()
}

func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// ObserveSnapshot publishes the size and net profit of a computed report.
func (m *Metrics) ObserveSnapshot(sales, adSpends int, netProfit decimal.Decimal) {
	m.records.WithLabelValues("sale").Set(float64(sales))
	m.records.WithLabelValues("ad_spend").Set(float64(adSpends))
	m.netProfit.Set(netProfit.InexactFloat64())
}

func (m *Metrics) RecordMirrorSync(outcome string, d time.Duration) {
	m.mirrorSyncs.WithLabelValues(outcome).Inc()
	m.mirrorTime.Observe(d.Seconds())
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
