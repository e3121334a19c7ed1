package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_desk_active_sessions",
		Help: "Number of open chat sessions",
	})
	ActivePlaybacks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_desk_active_playbacks",
		Help: "Number of utterances currently being played",
	})
)

// Counters
var (
	AgentRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_desk_agent_requests_total",
		Help: "Agent webhook requests by outcome",
	}, []string{"outcome"})
	AgentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_desk_agent_retries_total",
		Help: "Agent webhook attempts retried after a transport failure",
	})
	TranslationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_desk_translations_total",
		Help: "Translation calls by language and outcome",
	}, []string{"language", "outcome"})
	TranslationBatchesDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_desk_translation_batches_discarded_total",
		Help: "Translation batches superseded before completion",
	})
	SynthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_desk_speech_synthesis_total",
		Help: "Speech synthesis requests by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	AgentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_desk_agent_latency_seconds",
		Help:    "End-to-end agent webhook latency including retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
