package analysis

// Analysis is the AI-derived judgement about one module.
type Analysis struct {
	ModulePath          string   `json:"module_path"`
	Summary             string   `json:"summary"`
	Impact              string   `json:"impact"`
	AttackType          string   `json:"attack_type"`
	AffectedSystems     string   `json:"affected_systems"`
	Recommendations     []string `json:"recommendations"`
	PotentialIndicators []string `json:"potential_indicators"`
	DraftSnortRule      string   `json:"draft_snort_rule,omitempty"`
}

// HasSnortRule reports whether the response carried a seventh section.
func (a *Analysis) HasSnortRule() bool { return a.DraftSnortRule != "" }
