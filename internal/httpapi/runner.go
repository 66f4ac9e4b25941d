package httpapi

import (
	"context"

	"go.temporal.io/sdk/client"

	"github.com/strataplan/orchestrator/internal/workflows"
)

// RunHandle waits for one started run to finish.
type RunHandle interface {
	Get(ctx context.Context, valuePtr interface{}) error
}

// WorkflowRunner starts and cancels plan runs. Narrow on purpose so
// handlers can be tested without a Temporal server.
type WorkflowRunner interface {
	StartPlan(ctx context.Context, workflowID string, in workflows.PlanInput) (RunHandle, error)
	CancelPlan(ctx context.Context, workflowID string) error
}

// TemporalRunner adapts a Temporal client to WorkflowRunner.
type TemporalRunner struct {
	client    client.Client
	taskQueue string
}

func NewTemporalRunner(c client.Client, taskQueue string) *TemporalRunner {
	return &TemporalRunner{client: c, taskQueue: taskQueue}
}

func (r *TemporalRunner) StartPlan(ctx context.Context, workflowID string, in workflows.PlanInput) (RunHandle, error) {
	run, err := r.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: r.taskQueue,
	}, workflows.AccountPlanWorkflowName, in)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *TemporalRunner) CancelPlan(ctx context.Context, workflowID string) error {
	return r.client.CancelWorkflow(ctx, workflowID, "")
}
