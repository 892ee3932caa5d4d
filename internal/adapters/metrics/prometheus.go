package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recall_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_gateway_calls_total",
		Help: "Model gateway calls by operation, provider and outcome",
	}, []string{"operation", "provider", "outcome"})

	GatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recall_gateway_call_duration_seconds",
		Help:    "Model gateway call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "provider"})

	GatewayTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_gateway_tokens_total",
		Help: "Tokens consumed through the gateway",
	}, []string{"operation", "model", "direction"})

	GatewayCostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_gateway_cost_dollars_total",
		Help: "Estimated spend through the gateway in dollars",
	}, []string{"provider", "model"})

	CompressionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_compressions_total",
		Help: "Conversation compressions by outcome (parsed, retried, degraded, failed)",
	}, []string{"outcome"})

	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_searches_total",
		Help: "Memory searches by query type",
	}, []string{"query_type"})

	SearchCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_search_cache_total",
		Help: "Search cache lookups by result (hit, miss)",
	}, []string{"result"})

	InjectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_injections_total",
		Help: "Context injections by mode",
	}, []string{"mode"})

	InjectedTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_injected_tokens",
		Help:    "Tokens added per context injection",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000},
	})

	VectorOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_vector_ops_total",
		Help: "Vector index operations by type and outcome",
	}, []string{"op", "outcome"})

	OrphanRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recall_orphan_repairs_total",
		Help: "Memory units re-embedded by the background index repair sweep",
	})
)
