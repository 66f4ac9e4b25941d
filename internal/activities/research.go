package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/strataplan/orchestrator/internal/config"
	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/plan"
)

// ResearchCompany runs one research pass: the fixed query battery
// against the search capability, each query fault-isolated from the
// next. The returned patch carries one combined research entry, the
// sources gathered this pass, and the per-query progress labels ending
// with a summary count. The activity itself never fails: individual
// search failures are recorded as text.
func (a *Activities) ResearchCompany(ctx context.Context, in ResearchInput) (plan.Patch, error) {
	defer observeStage("research")()
	logger := activity.GetLogger(ctx)
	logger.Info("Starting research pass",
		"company", in.Company,
		"pass", in.Pass,
	)

	battery := config.LoadQueryBattery()
	labels := make([]string, 0, len(battery.Queries)+1)
	results := make([]string, 0, len(battery.Queries))
	sources := []string{}

	for _, q := range battery.Queries {
		query := renderQuery(q.Template, in.Company, in.Goals)
		res, err := a.search.Search(ctx, query)
		if err != nil {
			metrics.CapabilityFailures.WithLabelValues("search", "research").Inc()
			logger.Warn("Research query failed",
				"query", query,
				"error", err,
			)
			results = append(results, fmt.Sprintf("Search failed for %s: %v", query, err))
			labels = append(labels, q.Warning)
			continue
		}
		sources = append(sources, res.URLs()...)
		results = append(results, res.Flatten())
		labels = append(labels, q.Label)
	}

	labels = append(labels, fmt.Sprintf(
		"✅ Gathered comprehensive data from %d sources (Overview, Products, Competitors, News)...",
		len(sources),
	))
	metrics.SourcesGathered.Observe(float64(len(sources)))

	return plan.Patch{
		ProgressLog:  labels,
		ResearchData: []string{strings.Join(results, "\n\n")},
		Sources:      sources,
	}, nil
}

func renderQuery(template, company, goals string) string {
	q := strings.ReplaceAll(template, "{company}", company)
	q = strings.ReplaceAll(q, "{goals}", goals)
	return strings.TrimSpace(q)
}
