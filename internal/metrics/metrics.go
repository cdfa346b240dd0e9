package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conclave_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks currently active agent sessions
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conclave_active_sessions",
			Help: "Number of active agent sessions",
		},
		[]string{"agent_type"},
	)

	// SessionDuration tracks how long sessions run
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conclave_session_duration_seconds",
			Help:    "Session duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"agent_type", "status"},
	)

	// AgentSteps counts step-loop iterations by outcome
	AgentSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_agent_steps_total",
			Help: "Total number of agent step-loop iterations",
		},
		[]string{"agent_type", "outcome"},
	)

	// ToolCalls tracks tool invocations through the registry
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_tool_calls_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	// ProviderRequests counts LLM provider calls by model and outcome
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_provider_requests_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency tracks LLM provider round-trip time
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conclave_provider_latency_seconds",
			Help:    "LLM provider call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// TokensUsed counts tokens consumed by direction (input/output)
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"provider", "model", "direction"},
	)

	// EventBufferDrops tracks dropped events due to buffer overflow
	EventBufferDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_event_buffer_drops_total",
			Help: "Total number of events dropped due to buffer overflow",
		},
		[]string{"session_id"},
	)

	// ScheduleRuns counts scheduled executions by status
	ScheduleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_schedule_runs_total",
			Help: "Total number of scheduled agent runs",
		},
		[]string{"status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart increments the active session gauge
func RecordSessionStart(agentType string) {
	ActiveSessions.WithLabelValues(agentType).Inc()
}

// RecordSessionEnd decrements the active session gauge and records duration
func RecordSessionEnd(agentType, status string, durationSeconds float64) {
	ActiveSessions.WithLabelValues(agentType).Dec()
	SessionDuration.WithLabelValues(agentType, status).Observe(durationSeconds)
}

// RecordStep records one step-loop iteration
func RecordStep(agentType, outcome string) {
	AgentSteps.WithLabelValues(agentType, outcome).Inc()
}

// RecordToolCall records a tool invocation
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordProviderCall records an LLM provider round trip
func RecordProviderCall(provider, model, status string, durationSeconds float64) {
	ProviderRequests.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTokens records token usage for one provider call
func RecordTokens(provider, model string, inputTokens, outputTokens int) {
	TokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	TokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

// RecordEventDrop records an event buffer drop
func RecordEventDrop(sessionID string) {
	EventBufferDrops.WithLabelValues(sessionID).Inc()
}

// RecordScheduleRun records a scheduled execution outcome
func RecordScheduleRun(status string) {
	ScheduleRuns.WithLabelValues(status).Inc()
}
