package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectai_sessions_active",
			Help: "Current number of live call sessions",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_sessions_total",
			Help: "Total number of sessions by terminal state",
		},
		[]string{"state", "reason"}, // state: closed|errored
	)

	SessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connectai_session_duration_seconds",
			Help:    "Call session duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"state"},
	)

	// Audio metrics
	AudioFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_audio_frames_total",
			Help: "Total audio frames moved through the pipeline",
		},
		[]string{"direction"}, // direction: inbound|outbound
	)

	TranscodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_transcode_failures_total",
			Help: "Total malformed frames dropped by the transcoder",
		},
		[]string{"direction"},
	)

	FramesRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connectai_frames_rate_limited_total",
			Help: "Total inbound frames shed by the rate limiter",
		},
	)

	// Backend metrics
	BackendConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_backend_connects_total",
			Help: "Total model stream connection attempts",
		},
		[]string{"status"}, // status: success|error
	)

	BackendReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_backend_reconnects_total",
			Help: "Total mid-call model stream reconnect attempts",
		},
		[]string{"status"}, // status: success|failed
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connectai_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	// Transcript metrics
	TranscriptEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_transcript_events_total",
			Help: "Total transcript events published to the sink",
		},
		[]string{"role", "final"},
	)

	TranscriptDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_transcript_dropped_total",
			Help: "Total transcript events shed by slow subscribers",
		},
		[]string{"subscriber"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connectai_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectai_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectai_websocket_connections",
			Help: "Current number of open telephony WebSocket connections",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SessionDuration)

	prometheus.MustRegister(AudioFrames)
	prometheus.MustRegister(TranscodeFailures)
	prometheus.MustRegister(FramesRateLimited)

	prometheus.MustRegister(BackendConnects)
	prometheus.MustRegister(BackendReconnects)

	prometheus.MustRegister(ToolExecutions)
	prometheus.MustRegister(ToolLatency)

	prometheus.MustRegister(TranscriptEvents)
	prometheus.MustRegister(TranscriptDropped)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(WebSocketConnections)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionEnd records a terminal session state.
func RecordSessionEnd(state, reason string, duration time.Duration) {
	SessionsTotal.WithLabelValues(state, reason).Inc()
	SessionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
