package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/strataplan/orchestrator/internal/config"
	"github.com/strataplan/orchestrator/internal/llm"
	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/search"
	"github.com/strataplan/orchestrator/internal/streaming"
)

// Activities bundles the stage implementations with their injected
// capabilities. The struct holds no per-run state; all run state lives
// in workflow inputs and returned patches.
type Activities struct {
	llm     llm.Client
	search  search.Client
	streams *streaming.Manager
	cfg     config.WorkflowConfig
	logger  *zap.Logger
}

func New(llmClient llm.Client, searchClient search.Client, streams *streaming.Manager, cfg config.WorkflowConfig, logger *zap.Logger) *Activities {
	if cfg.CritiqueInputCap <= 0 {
		cfg.CritiqueInputCap = 2000
	}
	return &Activities{
		llm:     llmClient,
		search:  searchClient,
		streams: streams,
		cfg:     cfg,
		logger:  logger,
	}
}

// PublishEvent forwards a workflow-produced stream event to the event
// manager. Kept as an activity so the workflow's event emission is
// recorded in history and retried like any other side effect.
func (a *Activities) PublishEvent(ctx context.Context, evt streaming.Event) error {
	if evt.WorkflowID == "" {
		if info := activity.GetInfo(ctx); info.WorkflowExecution.ID != "" {
			evt.WorkflowID = info.WorkflowExecution.ID
		}
	}
	a.streams.Publish(evt.WorkflowID, evt)
	metrics.StreamEventsEmitted.WithLabelValues(evt.Type).Inc()
	return nil
}

// publishDiagnostic emits an operator-facing degrade signal for the
// current run. Distinct from user-visible message events.
func (a *Activities) publishDiagnostic(ctx context.Context, stage, message string) {
	wfID := ""
	if info := activity.GetInfo(ctx); info.WorkflowExecution.ID != "" {
		wfID = info.WorkflowExecution.ID
	}
	a.streams.Publish(wfID, streaming.Event{
		Type:      streaming.KindDiagnostic,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
	})
	metrics.StreamEventsEmitted.WithLabelValues(streaming.KindDiagnostic).Inc()
}

// observeStage records stage latency; use with defer at stage entry.
func observeStage(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
