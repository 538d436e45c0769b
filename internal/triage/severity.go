package triage

import "strings"

// MaxSeverity caps the severity score.
const MaxSeverity = 10

// symptomWeights maps lowercase symptom keywords to their clinical urgency
// contribution. Each keyword counts at most once per description.
var symptomWeights = []struct {
	keyword string
	weight  int
}{
	{"unconscious", 5},
	{"chest pain", 4},
	{"breathing difficulty", 4},
	{"fever", 2},
	{"headache", 1},
	{"vomiting", 1},
}

// Severity computes the rule-based severity score in [0, MaxSeverity] from
// patient age and a free-text symptom description. Keyword matching is a
// case-insensitive substring search.
func Severity(age int, symptoms string) int {
	lower := strings.ToLower(symptoms)

	total := ageScore(age)
	for _, sw := range symptomWeights {
		if strings.Contains(lower, sw.keyword) {
			total += sw.weight
		}
	}

	if total > MaxSeverity {
		return MaxSeverity
	}
	return total
}

// ageScore: seniors (>=65) contribute 2, middle-aged (>=45) contribute 1.
func ageScore(age int) int {
	switch {
	case age >= 65:
		return 2
	case age >= 45:
		return 1
	default:
		return 0
	}
}
