package activities

// Activity names, used by workflows to execute by name and by the
// worker registration in main.
const (
	ResearchCompanyActivity  = "ResearchCompany"
	CritiqueResearchActivity = "CritiqueResearch"
	SynthesizePlanActivity   = "SynthesizePlan"
	PublishEventActivity     = "PublishEvent"
)

// ResearchInput is the input for one research pass.
type ResearchInput struct {
	Company string `json:"company"`
	Goals   string `json:"goals"`
	Pass    int    `json:"pass"`
}

// CritiqueInput carries the accumulated research for one critique pass.
// CritiqueCount is the count before this pass; InputCap bounds how much
// research text reaches the model.
type CritiqueInput struct {
	Company       string   `json:"company"`
	ResearchData  []string `json:"research_data"`
	CritiqueCount int      `json:"critique_count"`
	InputCap      int      `json:"input_cap"`
}

// SynthesisInput carries the full research record for plan generation.
type SynthesisInput struct {
	Company      string   `json:"company"`
	ResearchData []string `json:"research_data"`
}

// critiqueVerdict is the JSON contract the critique prompt asks for.
type critiqueVerdict struct {
	HasConflicts        bool    `json:"has_conflicts"`
	ConflictDescription *string `json:"conflict_description"`
	NeedsMoreResearch   bool    `json:"needs_more_research"`
	QualityScore        int     `json:"quality_score"`
}
