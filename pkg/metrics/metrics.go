// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RAGRequestDuration tracks RAG webhook call duration.
	RAGRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_request_duration_seconds",
			Help:    "RAG webhook request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"endpoint", "status"},
	)

	// ChatMessagesTotal tracks chat messages persisted by role.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages persisted",
		},
		[]string{"role", "status"},
	)

	// ChatTokensTotal tracks estimated tokens processed.
	ChatTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_tokens_total",
			Help: "Estimated chat tokens processed",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// FileUploadsTotal tracks uploaded files by category.
	FileUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_uploads_total",
			Help: "Total files uploaded",
		},
		[]string{"category"},
	)

	// FileUploadBytes tracks uploaded bytes.
	FileUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "file_upload_bytes_total",
			Help: "Total bytes uploaded",
		},
	)

	// AnalyticsEventsPublished tracks events published to the stream.
	AnalyticsEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_published_total",
			Help: "Analytics events published to JetStream",
		},
		[]string{"event_type"},
	)

	// AnalyticsEventsConsumed tracks events persisted by the consumer.
	AnalyticsEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_consumed_total",
			Help: "Analytics events consumed and persisted",
		},
		[]string{"event_type", "status"},
	)

	// ReportsGenerated tracks report generation outcomes.
	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Reports generated by type and outcome",
		},
		[]string{"report_type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRAGRequest records metrics for a RAG webhook call.
func RecordRAGRequest(endpoint, status string, duration float64) {
	RAGRequestDuration.WithLabelValues(endpoint, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
