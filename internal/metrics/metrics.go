// Package metrics holds the service's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	quotes         *prometheus.CounterVec
	plans          *prometheus.CounterVec
	planChanges    prometheus.Counter
	staleRevisions prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopworks_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopworks_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopworks_quotes_total",
			Help: "Quotes computed by kind (part, variant) and mode (forward, reverse).",
		}, []string{"kind", "mode"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopworks_reconcile_plans_total",
			Help: "Reconciliation plans by operation and whether they were applied.",
		}, []string{"op", "applied"}),
		planChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopworks_reconcile_changes_total",
			Help: "Field changes proposed by reconciliation plans.",
		}),
		staleRevisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopworks_stale_revisions_total",
			Help: "Plans rejected because the part changed since the snapshot.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.quotes,
		m.plans,
		m.planChanges,
		m.staleRevisions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveQuote(kind string, reverse bool) {
	mode := "forward"
	if reverse {
		mode = "reverse"
	}
	m.quotes.WithLabelValues(kind, mode).Inc()
}

func (m *Metrics) ObservePlan(op string, changes int, applied bool) {
	m.plans.WithLabelValues(op, strconv.FormatBool(applied)).Inc()
	m.planChanges.Add(float64(changes))
}

func (m *Metrics) ObserveStaleRevision() {
	m.staleRevisions.Inc()
}
