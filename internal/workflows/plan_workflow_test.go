package workflows

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/strataplan/orchestrator/internal/activities"
	"github.com/strataplan/orchestrator/internal/plan"
	"github.com/strataplan/orchestrator/internal/streaming"
)

// stageStubs wires counting stub activities into a test environment so
// tests can assert call order and published events without real
// capabilities behind them.
type stageStubs struct {
	researchCalls  int
	critiqueCalls  int
	critiqueInputs []activities.CritiqueInput
	synthesisCalls int
	events         []streaming.Event

	researchErr error
}

func (s *stageStubs) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterWorkflowWithOptions(AccountPlanWorkflow, workflow.RegisterOptions{Name: AccountPlanWorkflowName})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.ResearchInput) (plan.Patch, error) {
		s.researchCalls++
		if s.researchErr != nil {
			return plan.Patch{}, s.researchErr
		}
		return plan.Patch{
			ProgressLog:  []string{fmt.Sprintf("researching pass %d", in.Pass)},
			ResearchData: []string{fmt.Sprintf("research blob %d", in.Pass)},
			Sources:      []string{fmt.Sprintf("https://example.com/%d", in.Pass)},
		}, nil
	}, activity.RegisterOptions{Name: activities.ResearchCompanyActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.CritiqueInput) (plan.Patch, error) {
		s.critiqueCalls++
		s.critiqueInputs = append(s.critiqueInputs, in)
		return plan.Patch{
			CritiqueCount:    in.CritiqueCount + 1,
			CritiqueCountSet: true,
		}, nil
	}, activity.RegisterOptions{Name: activities.CritiqueResearchActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.SynthesisInput) (plan.Patch, error) {
		s.synthesisCalls++
		sections := make(map[string]string, len(plan.SectionKeys))
		for _, k := range plan.SectionKeys {
			sections[k] = "generated " + k
		}
		return plan.Patch{PlanSections: sections}, nil
	}, activity.RegisterOptions{Name: activities.SynthesizePlanActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, evt streaming.Event) error {
		s.events = append(s.events, evt)
		return nil
	}, activity.RegisterOptions{Name: activities.PublishEventActivity})
}

func (s *stageStubs) stageNames() []string {
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Stage)
	}
	return names
}

func TestAccountPlanWorkflowDefaultLoop(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := &stageStubs{}
	stubs.register(env)

	env.ExecuteWorkflow(AccountPlanWorkflowName, PlanInput{Company: "Acme Corp", Goals: "expansion"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PlanResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorMessage)

	// Fixed-iteration loop: two research passes, one critique, then
	// synthesis with the counter at exactly 1.
	assert.Equal(t, 2, stubs.researchCalls)
	assert.Equal(t, 1, stubs.critiqueCalls)
	assert.Equal(t, 1, stubs.synthesisCalls)
	require.Len(t, stubs.critiqueInputs, 1)
	assert.Equal(t, 0, stubs.critiqueInputs[0].CritiqueCount)
	assert.Equal(t, 1, result.State.CritiqueCount)

	assert.Equal(t, []string{StageResearch, StageCritique, StageResearch, StageSynthesize}, stubs.stageNames())
	for _, e := range stubs.events {
		assert.Equal(t, streaming.KindStage, e.Type)
	}

	// Append rules accumulate across passes; replace rules do not.
	assert.Equal(t, []string{"research blob 1", "research blob 2"}, result.State.ResearchData)
	assert.Equal(t, []string{"https://example.com/1", "https://example.com/2"}, result.State.Sources)
	require.Len(t, result.State.PlanSections, 6)
	assert.Equal(t, "generated overview", result.State.PlanSections[plan.SectionOverview])
}

func TestAccountPlanWorkflowConfigurableMinPasses(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := &stageStubs{}
	stubs.register(env)

	env.ExecuteWorkflow(AccountPlanWorkflowName, PlanInput{Company: "Acme Corp", MinCritiquePasses: 2})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PlanResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, 3, stubs.researchCalls)
	assert.Equal(t, 2, stubs.critiqueCalls)
	assert.Equal(t, 2, result.State.CritiqueCount)
}

func TestAccountPlanWorkflowResearchFailureHalts(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := &stageStubs{
		researchErr: temporal.NewNonRetryableApplicationError("search backend gone", "infrastructure", nil),
	}
	stubs.register(env)

	env.ExecuteWorkflow(AccountPlanWorkflowName, PlanInput{Company: "Acme Corp"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PlanResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "search backend gone")
	assert.Equal(t, 0, stubs.critiqueCalls)
	assert.Equal(t, 0, stubs.synthesisCalls)

	// The halt is announced as a single error event; no stage events
	// precede it because the first merge never happened.
	require.Len(t, stubs.events, 1)
	assert.Equal(t, streaming.KindError, stubs.events[0].Type)
	assert.Equal(t, StageResearch, stubs.events[0].Stage)

	// Accumulated state is preserved, sentinel sections included.
	require.Len(t, result.State.PlanSections, 6)
	assert.Equal(t, plan.Sentinel, result.State.PlanSections[plan.SectionOverview])
}
