package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry. It doubles as the brain's
// Observer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	navigations  prometheus.Counter

	retrievals        *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	retrievalHits     prometheus.Histogram

	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

var _ brain.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them, along with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobrain_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "robobrain_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"route"}),

		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobrain_speech_turns_total",
			Help: "Speech turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "robobrain_speech_turn_duration_seconds",
			Help:    "End-to-end latency of a speech turn.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		navigations: f.NewCounter(prometheus.CounterOpts{
			Name: "robobrain_navigation_goals_total",
			Help: "Navigation goals handed to the robot.",
		}),

		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobrain_memory_retrievals_total",
			Help: "Memory retrievals by result.",
		}, []string{"result"}),
		retrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "robobrain_memory_retrieval_duration_seconds",
			Help:    "Memory retrieval latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}),
		retrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "robobrain_memory_retrieval_hits",
			Help:    "Records returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),

		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobrain_llm_generations_total",
			Help: "Model generations by result.",
		}, []string{"result"}),
		generationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "robobrain_llm_generation_duration_seconds",
			Help:    "Model generation latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// registerGaugeFunc adds a gauge computed at scrape time. Registering the
// same name twice is ignored.
func (m *Metrics) registerGaugeFunc(name, help string, fn func() float64) {
	_ = m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// ObserveTurn implements brain.Observer.
func (m *Metrics) ObserveTurn(outcome brain.Outcome, navigate bool, d time.Duration) {
	m.turns.WithLabelValues(string(outcome)).Inc()
	if outcome != brain.OutcomeRejected {
		m.turnDuration.Observe(d.Seconds())
	}
	if navigate {
		m.navigations.Inc()
	}
}

// ObserveRetrieval implements brain.Observer.
func (m *Metrics) ObserveRetrieval(hits int, err error, d time.Duration) {
	m.retrievals.WithLabelValues(result(err)).Inc()
	m.retrievalDuration.Observe(d.Seconds())
	if err == nil {
		m.retrievalHits.Observe(float64(hits))
	}
}

// ObserveGeneration implements brain.Observer.
func (m *Metrics) ObserveGeneration(err error, d time.Duration) {
	m.generations.WithLabelValues(result(err)).Inc()
	m.generationDuration.Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// middleware records request counts and latency keyed by route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
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
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
