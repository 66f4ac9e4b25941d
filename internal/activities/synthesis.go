package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/plan"
)

const synthesisPromptTemplate = `You are an expert Business Strategist.
Based on the following research about %s:
%s

Generate a comprehensive Strategic Account Plan.

IMPORTANT: Keep descriptions CONCISE and use BULLET POINTS. Avoid long paragraphs.
Limit each section to 3-5 key points.

Output the content in the following EXACT format (do not use JSON):

===OVERVIEW===
(Brief company overview here)

===PRODUCTS===
(Key products/services here)

===MARKETS===
(Target markets here)

===OPPORTUNITIES===
(Strategic opportunities here)

===RISKS===
(Potential risks here)

===ACTIONS===
(Recommended next steps here)`

// sectionMarkers pairs each plan section with the marker the model is
// instructed to emit, in output order. Extraction relies on this order
// to bound each section by the next marker that actually appears.
var sectionMarkers = []struct {
	key    string
	marker string
}{
	{plan.SectionOverview, "===OVERVIEW==="},
	{plan.SectionProducts, "===PRODUCTS==="},
	{plan.SectionMarkets, "===MARKETS==="},
	{plan.SectionOpportunities, "===OPPORTUNITIES==="},
	{plan.SectionRisks, "===RISKS==="},
	{plan.SectionActions, "===ACTIONS==="},
}

// SynthesizePlan turns the accumulated research into the six-section
// account plan. Generation or extraction trouble degrades to an error
// plan surfaced through the overview section; the activity itself
// never fails the workflow.
func (a *Activities) SynthesizePlan(ctx context.Context, in SynthesisInput) (plan.Patch, error) {
	defer observeStage("synthesize")()
	logger := activity.GetLogger(ctx)

	data := strings.Join(in.ResearchData, "\n")
	prompt := fmt.Sprintf(synthesisPromptTemplate, in.Company, data)

	response, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		metrics.CapabilityFailures.WithLabelValues("llm", "synthesize").Inc()
		a.publishDiagnostic(ctx, "synthesize", fmt.Sprintf("plan generation failed: %v", err))
		logger.Warn("Plan generation failed", "error", err)
		return plan.Patch{
			PlanSections: plan.ErrorSections(fmt.Sprintf("Error generating plan: %v", err)),
		}, nil
	}

	sections := extractSections(response)
	logger.Info("Plan synthesized", "company", in.Company)
	return plan.Patch{PlanSections: sections}, nil
}

// extractSections slices marker-delimited plan text into the section
// map. A section's content ends at the first subsequent marker present
// in the text, so one missing marker cannot bleed a neighbor's content
// into it. Absent sections get the "N/A" sentinel.
func extractSections(text string) map[string]string {
	sections := make(map[string]string, len(sectionMarkers))
	for i, sm := range sectionMarkers {
		sections[sm.key] = plan.Sentinel

		start := strings.Index(text, sm.marker)
		if start < 0 {
			continue
		}
		start += len(sm.marker)

		end := len(text)
		for _, next := range sectionMarkers[i+1:] {
			if idx := strings.Index(text[start:], next.marker); idx >= 0 {
				end = start + idx
				break
			}
		}

		if content := strings.TrimSpace(text[start:end]); content != "" {
			sections[sm.key] = content
		}
	}
	return sections
}
