package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_runs_started_total",
			Help: "Total number of account plan runs started",
		},
		[]string{"entrypoint"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_runs_completed_total",
			Help: "Total number of account plan runs completed",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strataplan_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Capability metrics
	CapabilityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_capability_failures_total",
			Help: "External capability (llm/search) call failures, by stage",
		},
		[]string{"capability", "stage"},
	)

	// Model output drift: parse failures are swallowed at the stage
	// boundary, so this counter is the operator's only signal.
	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_parse_failures_total",
			Help: "Model output parse failures, by consumer",
		},
		[]string{"consumer"},
	)

	SourcesGathered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strataplan_sources_gathered",
			Help:    "Source URLs gathered per research pass",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Session metrics
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_chat_requests_total",
			Help: "Chat requests, by classified outcome",
		},
		[]string{"outcome"},
	)

	StreamEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_stream_events_total",
			Help: "Stream events published to the event manager, by kind",
		},
		[]string{"kind"},
	)

	// Counted separately from publishes: one published event can be
	// forwarded to any number of connected sessions (or none).
	SessionEventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataplan_session_events_forwarded_total",
			Help: "Stream events written to client sessions, by kind",
		},
		[]string{"kind"},
	)
)
