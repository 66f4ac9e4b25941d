package workflows

import "github.com/strataplan/orchestrator/internal/plan"

// AccountPlanWorkflowName is the registration name used by the worker
// and by clients starting runs.
const AccountPlanWorkflowName = "AccountPlanWorkflow"

// Stage names carried on stage stream events.
const (
	StageResearch   = "research"
	StageCritique   = "critique"
	StageSynthesize = "synthesize"
)

// PlanInput starts one account-plan run. MinCritiquePasses below 1 is
// treated as 1.
type PlanInput struct {
	Company           string `json:"company"`
	Goals             string `json:"goals"`
	MinCritiquePasses int    `json:"min_critique_passes"`
}

// PlanResult is the terminal outcome of a run. State always carries
// whatever accumulated before the run ended, including on failure.
type PlanResult struct {
	State        plan.State `json:"state"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
