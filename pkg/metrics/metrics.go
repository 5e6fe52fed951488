// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intent_frames_processed_total",
		Help: "Evaluation ticks that ran the extractor",
	})

	// PerceptionFailures is labeled by kind: unavailable, malformed, error.
	PerceptionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_perception_failures_total",
		Help: "Perception samples treated as no face",
	}, []string{"kind"})

	Suggestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_suggestions_total",
		Help: "New candidate suggestions entering stabilization",
	}, []string{"label"})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_commits_total",
		Help: "Committed messages",
	}, []string{"category", "source"})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_phase_transitions_total",
		Help: "Commit machine phase transitions",
	}, []string{"from", "to"})

	Speech = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_speech_total",
		Help: "Speech requests by outcome: spoken, suppressed",
	}, []string{"outcome"})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intent_log_persistence_failures_total",
		Help: "Conversation log saves or loads that failed",
	})

	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_ingest_messages_total",
		Help: "Messages received on the ingest socket",
	}, []string{"type"})

	IngestClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intent_ingest_clients",
		Help: "Connected ingest clients",
	})

	SoundLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intent_sound_level",
		Help: "Most recent polled sound level",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intent_tick_duration_ms",
		Help:    "Evaluation tick latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
