package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/strataplan/orchestrator/internal/activities"
	"github.com/strataplan/orchestrator/internal/plan"
	"github.com/strataplan/orchestrator/internal/streaming"
)

// AccountPlanWorkflow drives one strategic-account-plan run through the
// research/critique refinement loop and final synthesis.
//
// The loop is a fixed-iteration policy, not a convergence check: each
// critique pass below the configured minimum triggers exactly one more
// research pass. With the default minimum of 1 a run performs two
// research passes and one critique pass before synthesizing.
//
// Stage activities are internally fault-isolated and return patches
// rather than errors, so an activity error here means infrastructure
// trouble that survived retries. In that case the run halts with an
// error event and whatever state accumulated so far; nothing is rolled
// back.
func AccountPlanWorkflow(ctx workflow.Context, in PlanInput) (PlanResult, error) {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	minPasses := in.MinCritiquePasses
	if minPasses < 1 {
		minPasses = 1
	}

	state := plan.NewState(in.Company, in.Goals)
	logger.Info("Account plan run started",
		"company", in.Company,
		"min_critique_passes", minPasses,
	)

	pass := 0
	for {
		pass++
		var patch plan.Patch
		err := workflow.ExecuteActivity(ctx, activities.ResearchCompanyActivity, activities.ResearchInput{
			Company: in.Company,
			Goals:   in.Goals,
			Pass:    pass,
		}).Get(ctx, &patch)
		if err != nil {
			return failRun(ctx, state, StageResearch, err)
		}
		state = plan.Apply(state, patch)
		emitStage(ctx, StageResearch, patch)

		if state.CritiqueCount >= minPasses {
			break
		}

		var critiquePatch plan.Patch
		err = workflow.ExecuteActivity(ctx, activities.CritiqueResearchActivity, activities.CritiqueInput{
			Company:       in.Company,
			ResearchData:  state.ResearchData,
			CritiqueCount: state.CritiqueCount,
		}).Get(ctx, &critiquePatch)
		if err != nil {
			return failRun(ctx, state, StageCritique, err)
		}
		state = plan.Apply(state, critiquePatch)
		emitStage(ctx, StageCritique, critiquePatch)
	}

	var synthesisPatch plan.Patch
	err := workflow.ExecuteActivity(ctx, activities.SynthesizePlanActivity, activities.SynthesisInput{
		Company:      in.Company,
		ResearchData: state.ResearchData,
	}).Get(ctx, &synthesisPatch)
	if err != nil {
		return failRun(ctx, state, StageSynthesize, err)
	}
	state = plan.Apply(state, synthesisPatch)
	emitStage(ctx, StageSynthesize, synthesisPatch)

	logger.Info("Account plan run completed",
		"company", in.Company,
		"research_passes", pass,
		"critique_count", state.CritiqueCount,
		"sources", len(state.Sources),
	)
	return PlanResult{State: state, Success: true}, nil
}

// emitStage publishes one stage event carrying the merged patch. Event
// delivery is best-effort: a publish failure must not fail the run.
func emitStage(ctx workflow.Context, stage string, patch plan.Patch) {
	evt := streaming.Event{
		Type:      streaming.KindStage,
		Stage:     stage,
		Patch:     &patch,
		Timestamp: workflow.Now(ctx),
	}
	if err := workflow.ExecuteActivity(ctx, activities.PublishEventActivity, evt).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Stage event publish failed", "stage", stage, "error", err)
	}
}

// failRun ends the run at the given stage with an error event and the
// accumulated state. The workflow itself completes so callers can still
// retrieve the partial result.
func failRun(ctx workflow.Context, state plan.State, stage string, err error) (PlanResult, error) {
	workflow.GetLogger(ctx).Error("Stage failed, halting run",
		"stage", stage,
		"error", err,
	)
	evt := streaming.Event{
		Type:      streaming.KindError,
		Stage:     stage,
		Message:   err.Error(),
		Timestamp: workflow.Now(ctx),
	}
	if pubErr := workflow.ExecuteActivity(ctx, activities.PublishEventActivity, evt).Get(ctx, nil); pubErr != nil {
		workflow.GetLogger(ctx).Warn("Error event publish failed", "error", pubErr)
	}
	return PlanResult{State: state, Success: false, ErrorMessage: err.Error()}, nil
}
