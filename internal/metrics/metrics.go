// Package metrics collects per-run generation counters on a private
// Prometheus registry and exports them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metric names.
const (
	MetricRequestsTotal   = "bankgen_requests_total"
	MetricRetriesTotal    = "bankgen_retries_total"
	MetricCacheHitsTotal  = "bankgen_cache_hits_total"
	MetricTokensTotal     = "bankgen_tokens_total"
	MetricRequestDuration = "bankgen_request_duration_seconds"
	MetricRecordsTotal    = "bankgen_records_total"
	MetricFailuresTotal   = "bankgen_failures_total"
)

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
)

// Generation holds the collectors for one run. All methods are safe on a
// nil receiver, which records nothing.
type Generation struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	cacheHits prometheus.Counter
	tokens    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	records   *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewGeneration registers the collectors on a fresh registry.
func NewGeneration() *Generation {
	g := &Generation{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "Generation requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRetriesTotal,
			Help: "Retried generation attempts by backend.",
		}, []string{"backend"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheHitsTotal,
			Help: "Requests served from the response cache.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTokensTotal,
			Help: "Tokens reported by the backend.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRequestDuration,
			Help:    "Backend call latency including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"backend"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRecordsTotal,
			Help: "Records written by stage.",
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFailuresTotal,
			Help: "Failed batches or personas by stage.",
		}, []string{"stage"}),
	}

	g.registry.MustRegister(
		g.requests, g.retries, g.cacheHits, g.tokens,
		g.duration, g.records, g.failures,
	)
	return g
}

// Registry exposes the underlying registry.
func (g *Generation) Registry() *prometheus.Registry {
	if g == nil {
		return nil
	}
	return g.registry
}

func (g *Generation) ObserveRequest(backend, outcome string, d time.Duration) {
	if g == nil {
		return
	}
	g.requests.WithLabelValues(backend, outcome).Inc()
	if outcome != OutcomeCached {
		g.duration.WithLabelValues(backend).Observe(d.Seconds())
	}
}

func (g *Generation) ObserveRetry(backend string) {
	if g == nil {
		return
	}
	g.retries.WithLabelValues(backend).Inc()
}

func (g *Generation) ObserveCacheHit() {
	if g == nil {
		return
	}
	g.cacheHits.Inc()
}

func (g *Generation) ObserveTokens(input, output int64) {
	if g == nil {
		return
	}
	g.tokens.WithLabelValues("input").Add(float64(input))
	g.tokens.WithLabelValues("output").Add(float64(output))
}

func (g *Generation) ObserveRecords(stage string, n int) {
	if g == nil || n <= 0 {
		return
	}
	g.records.WithLabelValues(stage).Add(float64(n))
}

func (g *Generation) ObserveFailure(stage string) {
	if g == nil {
		return
	}
	g.failures.WithLabelValues(stage).Inc()
}

// WriteTextfile writes the current values to path atomically.
func (g *Generation) WriteTextfile(path string) error {
	if g == nil {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, g.registry), "metrics: write %s", path)
}
