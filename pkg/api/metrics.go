package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoria",
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})

	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memoria",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	metricKnowledgeEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memoria",
		Name:      "knowledge_entries",
		Help:      "Entries currently held by the knowledge store.",
	})

	metricCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memoria",
		Name:      "cache_entries",
		Help:      "Live entries in the context cache.",
	})

	metricInteractions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memoria",
		Name:      "interactions_logged",
		Help:      "Records currently retained by the interaction log.",
	})
)

// refreshGauges samples subsystem sizes. Called from the metrics handler
// so scrapes always see current values.
func (s *Server) refreshGauges() {
	if s.store != nil {
		metricKnowledgeEntries.Set(float64(s.store.Len()))
	}
	if s.cache != nil {
		metricCacheEntries.Set(float64(s.cache.Stats().TotalEntries))
	}
	if s.log != nil {
		metricInteractions.Set(float64(s.log.Len()))
	}
}
