// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lingua_aggregator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Aggregation metrics
	UtterancesTotal  *prometheus.CounterVec
	CommitsTotal     *prometheus.CounterVec
	CommittedChars   prometheus.Histogram
	BoundaryDedups   prometheus.Counter
	ProtectedDedups  prometheus.Counter
	InternalRepeats  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionEvictions *prometheus.CounterVec

	// Last-sent dedup metrics
	LastSentVerdicts *prometheus.CounterVec
	LastSentEntries  prometheus.Gauge

	// Gate metrics
	GateDispositions *prometheus.CounterVec
	DuplicateJobs    prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	StreamsActive   prometheus.Gauge
	StreamsTotal    prometheus.Counter
	StreamDuration  prometheus.Histogram
	PanicsRecovered prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		UtterancesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of utterances processed, by stream action",
		}, []string{"action"}),
		CommitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total number of commits, by trigger",
		}, []string{"trigger"}),
		CommittedChars: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "committed_chars",
			Help:      "Characters released per commit",
			Buckets:   []float64{5, 10, 20, 40, 80, 120, 200, 400},
		}),
		BoundaryDedups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_dedups_total",
			Help:      "Total number of utterance boundary overlaps trimmed",
		}),
		ProtectedDedups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protected_dedups_total",
			Help:      "Total number of boundary trims rejected to keep a short utterance",
		}),
		InternalRepeats: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "internal_repeats_total",
			Help:      "Total number of utterances with internal repetition removed",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held by the aggregation registry",
		}),
		SessionEvictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Total number of sessions removed from the registry, by cause",
		}, []string{"cause"}),

		LastSentVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "last_sent_verdicts_total",
			Help:      "Total number of last-sent dedup checks, by reason",
		}, []string{"reason"}),
		LastSentEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sent_entries",
			Help:      "Number of sessions tracked by the last-sent deduplicator",
		}),

		GateDispositions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_dispositions_total",
			Help:      "Total number of gate decisions, by disposition",
		}, []string{"disposition"}),
		DuplicateJobs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_jobs_total",
			Help:      "Total number of jobs rejected because their utterance was already sent",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of RPC requests, by method and status code",
		}, []string{"method", "code"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "RPC request latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open websocket streams",
		}),
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of websocket streams opened",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of websocket streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		PanicsRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Total number of panics recovered in request handlers",
		}),
	}
}

// RecordUtterance records one processed utterance and its stream action.
func (m *Metrics) RecordUtterance(action string) {
	m.UtterancesTotal.WithLabelValues(action).Inc()
}

// RecordCommit records text released by the aggregation engine.
func (m *Metrics) RecordCommit(trigger string, chars int) {
	m.CommitsTotal.WithLabelValues(trigger).Inc()
	m.CommittedChars.Observe(float64(chars))
}

// RecordDedup adds per-call dedup deltas.
func (m *Metrics) RecordDedup(boundary, protected, internal int) {
	m.BoundaryDedups.Add(float64(boundary))
	m.ProtectedDedups.Add(float64(protected))
	m.InternalRepeats.Add(float64(internal))
}

// RecordSessionCreated records a session entering the registry.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsActive.Inc()
}

// RecordSessionEvicted records a session leaving the registry.
func (m *Metrics) RecordSessionEvicted(cause string) {
	m.SessionsActive.Dec()
	m.SessionEvictions.WithLabelValues(cause).Inc()
}

// RecordLastSentVerdict records a last-sent dedup check.
func (m *Metrics) RecordLastSentVerdict(reason string) {
	m.LastSentVerdicts.WithLabelValues(reason).Inc()
}

// SetLastSentEntries sets the number of tracked last-sent sessions.
func (m *Metrics) SetLastSentEntries(n int) {
	m.LastSentEntries.Set(float64(n))
}

// RecordGateDisposition records a gate decision.
func (m *Metrics) RecordGateDisposition(disposition string) {
	m.GateDispositions.WithLabelValues(disposition).Inc()
}

// RecordDuplicateJob records a job rejected by the at-most-once ledger.
func (m *Metrics) RecordDuplicateJob() {
	m.DuplicateJobs.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRequest records a completed RPC.
func (m *Metrics) RecordRequest(method, code string, latencySeconds float64) {
	m.RequestsTotal.WithLabelValues(method, code).Inc()
	m.RequestLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordStreamStart records a websocket stream opening.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a websocket stream closing.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	m.PanicsRecovered.Inc()
}
