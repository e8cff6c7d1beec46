package analysis

import "strings"

const (
	DefaultSummary         = "No summary available"
	DefaultImpact          = "Impact analysis not available"
	DefaultAttackType      = "Attack type not specified"
	DefaultAffectedSystems = "Affected systems not specified"
)

// ParseSections maps the blank-line separated paragraphs of text onto the
// seven analysis fields by position. Nothing checks that paragraph N really
// holds section N; if the model merges or reorders sections the fields shift.
func ParseSections(modulePath, text string) Analysis {
	sections := strings.Split(text, "\n\n")
	at := func(i int) (string, bool) {
		if i < len(sections) {
			return sections[i], true
		}
		return "", false
	}
	scalar := func(i int, fallback string) string {
		if s, ok := at(i); ok {
			return s
		}
		return fallback
	}
	list := func(i int) []string {
		if s, ok := at(i); ok {
			return strings.Split(s, "\n")
		}
		return []string{}
	}

	a := Analysis{
		ModulePath:          modulePath,
		Summary:             scalar(0, DefaultSummary),
		Impact:              scalar(1, DefaultImpact),
		AttackType:          scalar(2, DefaultAttackType),
		AffectedSystems:     scalar(3, DefaultAffectedSystems),
		Recommendations:     list(4),
		PotentialIndicators: list(5),
	}
	if s, ok := at(6); ok {
		a.DraftSnortRule = s
	}
	return a
}
