// Package observability provides Prometheus metrics, HTTP middleware and
// OpenTelemetry tracing for the homebrain backend.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for model call and whole-turn
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homebrain_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "homebrain_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// TurnsTotal counts engine turns by operation (run, resume) and outcome
	// (completed, suspended, rejected, failed, cancelled).
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_turns_total",
			Help: "Engine turns",
		},
		[]string{"op", "outcome"},
	)

	// RouteDecisionsTotal counts router decisions by route and reason.
	RouteDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_route_decisions_total",
			Help: "Router decisions",
		},
		[]string{"route", "reason"},
	)

	// ClarificationsTotal counts clarification prompts issued and resolved.
	ClarificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_clarifications_total",
			Help: "Clarification prompts",
		},
		[]string{"event"},
	)

	// GeneratorRequestsTotal counts calls to the model backend.
	GeneratorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_generator_requests_total",
			Help: "Generator requests",
		},
		[]string{"generator", "call", "status"},
	)

	// GeneratorLatency records model backend latency in seconds.
	GeneratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homebrain_generator_latency_seconds",
			Help:    "Generator latency",
			Buckets: LLMBuckets,
		},
		[]string{"generator", "call"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// AuthRejectedTotal counts requests rejected by the auth chain.
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homebrain_auth_rejected_total",
			Help: "Auth rejections",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		TurnsTotal,
		RouteDecisionsTotal,
		ClarificationsTotal,
		GeneratorRequestsTotal,
		GeneratorLatency,
		ToolExecutionsTotal,
		AuthRejectedTotal,
	)
}
