package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// perplexityBuckets spans the gauge range of the perplexity page.
var perplexityBuckets = []float64{1, 2, 4, 8, 16, 30, 60, 120, 1000}

// Reporter of service metrics
type Reporter interface {
	// Evaluation is invoked every time a text is evaluated (cache misses only).
	Evaluation(result PerplexityResult)
	// Optimization is invoked every time an optimization trajectory is computed.
	Optimization(steps int)
	// CacheHit and CacheMiss account lookups in the analysis cache.
	CacheHit()
	CacheMiss()
	// HTTPRequest is invoked once per served request.
	HTTPRequest(route string, status int)
}

// NoopReporter is a metrics Reporter that just does nothing
type NoopReporter struct{}

func (NoopReporter) Evaluation(_ PerplexityResult) {}
func (NoopReporter) Optimization(_ int)            {}
func (NoopReporter) CacheHit()                     {}
func (NoopReporter) CacheMiss()                    {}
func (NoopReporter) HTTPRequest(_ string, _ int)   {}

// PrometheusReporter is a Reporter that exports to Prometheus
type PrometheusReporter struct {
	registry         *prometheus.Registry
	evaluations      prometheus.Counter
	perplexities     *prometheus.HistogramVec
	optimizations    prometheus.Counter
	optimizationLens prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

func NewPrometheusReporter() *PrometheusReporter {
	pr := &PrometheusReporter{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_apps_evaluations_total",
			Help: "number of texts evaluated by the perplexity models",
		}),
		perplexities: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_apps_perplexity",
			Help:    "perplexity of evaluated texts, per model",
			Buckets: perplexityBuckets,
		}, []string{"model"}),
		optimizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_apps_optimizations_total",
			Help: "number of optimization trajectories computed",
		}),
		optimizationLens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_apps_optimization_steps",
			Help:    "length of the computed optimization trajectories",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_apps_cache_lookups_total",
			Help: "lookups in the analysis cache",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_apps_http_requests_total",
			Help: "served HTTP requests",
		}, []string{"route", "status"}),
	}
	pr.registry.MustRegister(
		pr.evaluations,
		pr.perplexities,
		pr.optimizations,
		pr.optimizationLens,
		pr.cacheLookups,
		pr.httpRequests)
	return pr
}

// Registry returns the registry the collectors are registered in.
func (p *PrometheusReporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusReporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusReporter) Evaluation(result PerplexityResult) {
	p.evaluations.Inc()
	p.perplexities.WithLabelValues("unigram").Observe(result.Unigram)
	p.perplexities.WithLabelValues("llm").Observe(result.Context)
}

func (p *PrometheusReporter) Optimization(steps int) {
	p.optimizations.Inc()
	p.optimizationLens.Observe(float64(steps))
}

func (p *PrometheusReporter) CacheHit() {
	p.cacheLookups.WithLabelValues("hit").Inc()
}

func (p *PrometheusReporter) CacheMiss() {
	p.cacheLookups.WithLabelValues("miss").Inc()
}

func (p *PrometheusReporter) HTTPRequest(route string, status int) {
	p.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
