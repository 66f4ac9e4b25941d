package plan

// Sentinel marks a plan section that has not been populated yet.
const Sentinel = "N/A"

// Section keys, in report order.
const (
	SectionOverview      = "overview"
	SectionProducts      = "products_services"
	SectionMarkets       = "markets_customers"
	SectionOpportunities = "opportunities"
	SectionRisks         = "risks"
	SectionActions       = "recommended_actions"
)

// SectionKeys lists the six fixed plan sections in report order.
var SectionKeys = []string{
	SectionOverview,
	SectionProducts,
	SectionMarkets,
	SectionOpportunities,
	SectionRisks,
	SectionActions,
}

// State is the accumulated record of one workflow run. The workflow is
// its sole mutator; it is created fresh per run and discarded when the
// run terminates.
type State struct {
	Company       string            `json:"company"`
	Goals         string            `json:"goals"`
	ProgressLog   []string          `json:"progress_log"`
	ResearchData  []string          `json:"research_data"`
	Sources       []string          `json:"sources"`
	PlanSections  map[string]string `json:"plan_sections"`
	CritiqueCount int               `json:"critique_count"`
}

// NewState initializes a run state. Sources is always an empty slice,
// never nil, for both entry points; plan sections start at the sentinel.
func NewState(company, goals string) State {
	sections := make(map[string]string, len(SectionKeys))
	for _, k := range SectionKeys {
		sections[k] = Sentinel
	}
	return State{
		Company:      company,
		Goals:        goals,
		ProgressLog:  []string{},
		ResearchData: []string{},
		Sources:      []string{},
		PlanSections: sections,
	}
}

// Patch is a sparse update produced by one stage. Append-rule fields
// (ProgressLog, ResearchData, Sources) are concatenated onto the state;
// replace-rule fields (PlanSections, CritiqueCount) overwrite it.
// CritiqueCountSet distinguishes "replace with zero" from "not touched".
type Patch struct {
	ProgressLog      []string          `json:"progress_log,omitempty"`
	ResearchData     []string          `json:"research_data,omitempty"`
	Sources          []string          `json:"sources,omitempty"`
	PlanSections     map[string]string `json:"plan_sections,omitempty"`
	CritiqueCount    int               `json:"critique_count,omitempty"`
	CritiqueCountSet bool              `json:"critique_count_set,omitempty"`
}

// Apply merges a patch into the state using the per-field rules.
func Apply(s State, p Patch) State {
	s.ProgressLog = append(s.ProgressLog, p.ProgressLog...)
	s.ResearchData = append(s.ResearchData, p.ResearchData...)
	s.Sources = append(s.Sources, p.Sources...)
	if p.PlanSections != nil {
		s.PlanSections = p.PlanSections
	}
	if p.CritiqueCountSet {
		s.CritiqueCount = p.CritiqueCount
	}
	return s
}

// ErrorSections returns a full section map with the overview describing
// a generation failure and every other section at the sentinel.
func ErrorSections(message string) map[string]string {
	sections := make(map[string]string, len(SectionKeys))
	for _, k := range SectionKeys {
		sections[k] = Sentinel
	}
	sections[SectionOverview] = message
	return sections
}
