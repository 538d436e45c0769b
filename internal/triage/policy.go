package triage

import "strings"

// EmergencyPolicy decides the binary emergency flag for a patient. Two
// historical policies exist and disagree; they are kept as separate,
// selectable implementations rather than merged.
type EmergencyPolicy interface {
	// Emergency returns 1 when the patient needs priority allocation,
	// otherwise 0. severity is the precomputed Severity score.
	Emergency(age int, symptoms string, severity int) int
	Name() string
}

// Policy names accepted by PolicyFromName.
const (
	PolicySeverityThreshold = "severity-threshold"
	PolicySymptomFlags      = "symptom-flags"
)

// DefaultEmergencyThreshold is the severity at and above which a patient is
// an emergency under the threshold policy.
const DefaultEmergencyThreshold = 8

// SeverityThresholdPolicy flags emergencies purely from the severity score.
// This is the canonical policy.
type SeverityThresholdPolicy struct {
	Threshold int
}

func (p SeverityThresholdPolicy) Emergency(age int, symptoms string, severity int) int {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultEmergencyThreshold
	}
	if severity >= threshold {
		return 1
	}
	return 0
}

func (p SeverityThresholdPolicy) Name() string { return PolicySeverityThreshold }

// severeKeywords trigger an emergency on their own; moderateKeywords only do
// so for elderly patients.
var severeKeywords = []string{
	"chest pain", "breathlessness", "unconscious", "seizure", "stroke",
	"heart attack", "severe bleeding", "paralysis", "trauma", "cardiac arrest",
	"difficulty breathing", "shortness of breath", "fainting", "collapse",
}

var moderateKeywords = []string{
	"fever", "vomiting", "dizziness", "headache", "nausea", "pain",
	"swelling", "cough", "fatigue", "weakness", "infection", "fracture",
	"sprain", "diarrhea", "abdominal pain",
}

// SymptomFlagPolicy is the keyword-driven variant: severe symptoms are
// always an emergency, moderate symptoms only when the patient is over 65.
type SymptomFlagPolicy struct{}

func (SymptomFlagPolicy) Emergency(age int, symptoms string, severity int) int {
	lower := strings.ToLower(symptoms)

	if containsAny(lower, severeKeywords) {
		return 1
	}
	if age > 65 && containsAny(lower, moderateKeywords) {
		return 1
	}
	return 0
}

func (SymptomFlagPolicy) Name() string { return PolicySymptomFlags }

// PolicyFromName resolves a configured policy name, defaulting to the
// severity threshold policy for unknown names.
func PolicyFromName(name string) EmergencyPolicy {
	if name == PolicySymptomFlags {
		return SymptomFlagPolicy{}
	}
	return SeverityThresholdPolicy{Threshold: DefaultEmergencyThreshold}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
