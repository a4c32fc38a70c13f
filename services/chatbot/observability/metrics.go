// Package observability provides Prometheus metrics for the chatbot service.
//
// Metrics cover message-pipeline outcomes (success, fallback, redaction),
// policy actions (removed links, escalations), and model-invocation latency.
// Metrics are exposed via the /metrics endpoint; all operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chatbot"

const pipelineSubsystem = "pipeline"

// Pipeline outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRedacted = "redacted"
	OutcomeFallback = "fallback"
)

// PipelineMetrics holds all Prometheus metrics for the message pipeline.
// Initialize once at startup via NewPipelineMetrics.
type PipelineMetrics struct {
	// MessagesTotal counts processed user messages by final outcome.
	// Labels: outcome (ok, redacted, fallback)
	MessagesTotal *prometheus.CounterVec

	// EscalationsTotal counts replies delivered with escalation set.
	EscalationsTotal prometheus.Counter

	// RemovedLinksTotal counts replies with at least one link removed by the
	// domain allow-list.
	RemovedLinksTotal prometheus.Counter

	// ModelLatencySeconds measures the duration of the model invocation.
	ModelLatencySeconds prometheus.Histogram
}

// NewPipelineMetrics creates and registers the pipeline metrics with the
// given registerer. Pass prometheus.DefaultRegisterer in production and a
// fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "messages_total",
			Help:      "User messages processed, by final outcome.",
		}, []string{"outcome"}),
		EscalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "escalations_total",
			Help:      "Replies delivered with the escalation flag set.",
		}),
		RemovedLinksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "removed_links_total",
			Help:      "Replies with at least one resource link removed by the allow-list.",
		}),
		ModelLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "model_latency_seconds",
			Help:      "Duration of the model invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
