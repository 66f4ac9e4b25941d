package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/strataplan/orchestrator/internal/llm"
	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/plan"
)

const critiquePromptTemplate = `Analyze this research data about %s. Check for:
1. Conflicting information (e.g., different revenue numbers)
2. Missing critical information
3. Outdated data

Research Data:
%s

Respond in JSON:
{
    "has_conflicts": true/false,
    "conflict_description": "brief description or null",
    "needs_more_research": true/false,
    "quality_score": 1-10
}`

// CritiqueResearch scores the accumulated research for conflicts and
// gaps. The critique counter is the loop driver, so the returned patch
// advances it no matter what happens: capability failures and
// unparseable model output degrade to "no critique signal" plus a
// diagnostic event, never an error.
func (a *Activities) CritiqueResearch(ctx context.Context, in CritiqueInput) (plan.Patch, error) {
	defer observeStage("critique")()
	logger := activity.GetLogger(ctx)

	patch := plan.Patch{
		CritiqueCount:    in.CritiqueCount + 1,
		CritiqueCountSet: true,
	}

	limit := in.InputCap
	if limit <= 0 {
		limit = a.cfg.CritiqueInputCap
	}
	data := strings.Join(in.ResearchData, "\n")
	if runes := []rune(data); len(runes) > limit {
		// Token-budget safeguard for the downstream prompt.
		data = string(runes[:limit])
	}

	prompt := fmt.Sprintf(critiquePromptTemplate, in.Company, data)
	response, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		metrics.CapabilityFailures.WithLabelValues("llm", "critique").Inc()
		a.publishDiagnostic(ctx, "critique", fmt.Sprintf("critique generation failed: %v", err))
		logger.Warn("Critique generation failed, continuing without signal", "error", err)
		return patch, nil
	}

	var verdict critiqueVerdict
	if err := llm.UnmarshalLoose(response, &verdict); err != nil {
		metrics.ParseFailures.WithLabelValues("critique").Inc()
		a.publishDiagnostic(ctx, "critique", fmt.Sprintf("critique output unparseable: %v", err))
		logger.Warn("Critique output unparseable, continuing without signal", "error", err)
		return patch, nil
	}

	logger.Info("Critique pass completed",
		"has_conflicts", verdict.HasConflicts,
		"needs_more_research", verdict.NeedsMoreResearch,
		"quality_score", verdict.QualityScore,
	)

	if verdict.HasConflicts {
		desc := "data inconsistencies"
		if verdict.ConflictDescription != nil && *verdict.ConflictDescription != "" {
			desc = *verdict.ConflictDescription
		}
		patch.ProgressLog = []string{fmt.Sprintf(
			"⚠️ I found some conflicting information about %s: %s. Proceeding with the most reliable sources...",
			in.Company, desc,
		)}
	}

	return patch, nil
}
