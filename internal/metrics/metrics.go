package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service metrics. Each Registry owns its own prometheus
// registry.
type Registry struct {
	reg *prometheus.Registry

	// Chain metrics
	ChainMutations   *prometheus.CounterVec
	ChainCorruptions *prometheus.CounterVec
	GuardOutcomes    *prometheus.CounterVec
	ChainLength      *prometheus.HistogramVec

	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// New creates a Registry with Go and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		ChainMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwmanager_chain_mutations_total",
			Help: "Chain mutations by entity kind, operation and result",
		}, []string{"kind", "op", "result"}),

		ChainCorruptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwmanager_chain_corruptions_total",
			Help: "Materializations that found a broken successor path",
		}, []string{"kind"}),

		GuardOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwmanager_uniqueness_guard_total",
			Help: "Uniqueness guard decisions (absent, existing, conflict)",
		}, []string{"kind", "outcome"}),

		ChainLength: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fwmanager_chain_length",
			Help:    "Number of members seen when materializing a chain",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind"}),

		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwmanager_api_requests_total",
			Help: "HTTP API requests by method, route and status",
		}, []string{"method", "route", "status"}),

		APILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fwmanager_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
