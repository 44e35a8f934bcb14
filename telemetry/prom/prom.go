// Package prom is a Prometheus-backed telemetry.Sink. It registers its
// own metrics against a private registry by default so that multiple
// engines (or repeated test construction) never collide on the global
// default registerer, following the same "no unbounded label
// cardinality" discipline as the pack's churn telemetry module.
package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinyforge/llminfer/telemetry"
)

// Sink implements telemetry.Sink, exporting counters and histograms for
// every Kind in the taxonomy. Construct with NewSink and pass the
// result wherever a telemetry.Sink is accepted (engine.Load passes it
// on to kvcache.NewStore).
type Sink struct {
	registry *prometheus.Registry

	sessionsCreated   prometheus.Counter
	sessionsEvicted   prometheus.Counter
	budgetRejections  prometheus.Counter
	generations       prometheus.Counter
	kvBytesPerSession prometheus.Histogram
	completionTokens  prometheus.Histogram
	generationMillis  prometheus.Histogram
}

// NewSink creates a Sink with its own registry. Pass the returned
// Sink's Handler to an HTTP mux to expose /metrics.
func NewSink() *Sink {
	reg := prometheus.NewRegistry()
	s := &Sink{
		registry: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llminfer_kv_sessions_created_total",
			Help: "Total KV cache sessions admitted.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llminfer_kv_sessions_evicted_total",
			Help: "Total KV cache sessions reclaimed by the LRU policy.",
		}),
		budgetRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llminfer_kv_budget_rejections_total",
			Help: "Total admissions rejected because no eviction could satisfy the budget.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llminfer_generations_completed_total",
			Help: "Total generation requests that reached a terminal state.",
		}),
		kvBytesPerSession: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llminfer_kv_entry_bytes",
			Help:    "Distribution of KV cache entry sizes in bytes at creation/eviction time.",
			Buckets: prometheus.ExponentialBuckets(1<<16, 4, 10),
		}),
		completionTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llminfer_generation_completion_tokens",
			Help:    "Distribution of completion token counts per finished generation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		generationMillis: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llminfer_generation_duration_milliseconds",
			Help:    "Distribution of total generation wall-clock time in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 14),
		}),
	}
	reg.MustRegister(
		s.sessionsCreated, s.sessionsEvicted, s.budgetRejections, s.generations,
		s.kvBytesPerSession, s.completionTokens, s.generationMillis,
	)
	return s
}

// Emit implements telemetry.Sink.
func (s *Sink) Emit(e telemetry.Event) {
	switch e.Kind {
	case telemetry.SessionCreated:
		s.sessionsCreated.Inc()
		s.kvBytesPerSession.Observe(float64(e.Bytes))
	case telemetry.SessionEvicted:
		s.sessionsEvicted.Inc()
		s.kvBytesPerSession.Observe(float64(e.Bytes))
	case telemetry.BudgetRejected:
		s.budgetRejections.Inc()
	case telemetry.GenerationCompleted:
		s.generations.Inc()
		s.completionTokens.Observe(float64(e.CompletionTokens))
		s.generationMillis.Observe(e.TotalMillis)
	}
}

// Handler returns an http.Handler serving this Sink's metrics in the
// Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that want to
// register additional collectors alongside this Sink's metrics.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}
