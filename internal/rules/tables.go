// Package rules holds the static clinical policy of the triage engine: the
// symptom and condition tables, vital-sign thresholds and the per-tier
// recommendation text. Changing triage policy means editing this package,
// never the scoring algorithm.
package rules

import (
	"github.com/triage-risk-engine/internal/domain"
)

// Version identifies the rule table revision stamped on every assessment.
const Version = "2024.1"

// SymptomRule maps a symptom to its severity and the departments it votes for.
type SymptomRule struct {
	ID          string              `json:"id"`
	Severity    float64             `json:"severity"`
	Departments []domain.Department `json:"departments"`
}

// ConditionRule maps a pre-existing condition to its risk weight.
type ConditionRule struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// symptomTable is ordered; lookups go through symptomIndex.
var symptomTable = []SymptomRule{
	{"Chest Pain", 9, []domain.Department{domain.DepartmentCardiology, domain.DepartmentEmergency}},
	{"Shortness of Breath", 8, []domain.Department{domain.DepartmentPulmonology, domain.DepartmentEmergency, domain.DepartmentCardiology}},
	{"Severe Headache", 7, []domain.Department{domain.DepartmentNeurology, domain.DepartmentEmergency}},
	{"Dizziness", 5, []domain.Department{domain.DepartmentNeurology, domain.DepartmentGeneralMedicine}},
	{"Nausea", 3, []domain.Department{domain.DepartmentGastroenterology, domain.DepartmentGeneralMedicine}},
	{"Fever", 4, []domain.Department{domain.DepartmentGeneralMedicine}},
	{"Cough", 3, []domain.Department{domain.DepartmentPulmonology, domain.DepartmentGeneralMedicine}},
	{"Fatigue", 2, []domain.Department{domain.DepartmentGeneralMedicine, domain.DepartmentEndocrinology}},
	{"Joint Pain", 4, []domain.Department{domain.DepartmentOrthopedics, domain.DepartmentGeneralMedicine}},
	{"Abdominal Pain", 6, []domain.Department{domain.DepartmentGastroenterology, domain.DepartmentEmergency}},
	{"Back Pain", 4, []domain.Department{domain.DepartmentOrthopedics, domain.DepartmentGeneralMedicine}},
	{"Skin Rash", 2, []domain.Department{domain.DepartmentDermatology}},
	{"Anxiety", 3, []domain.Department{domain.DepartmentPsychiatry, domain.DepartmentGeneralMedicine}},
	{"Palpitations", 6, []domain.Department{domain.DepartmentCardiology}},
	{"Vision Problems", 5, []domain.Department{domain.DepartmentNeurology}},
	{"Numbness", 6, []domain.Department{domain.DepartmentNeurology}},
	{"Swelling", 4, []domain.Department{domain.DepartmentGeneralMedicine, domain.DepartmentCardiology}},
	{"Weight Loss", 3, []domain.Department{domain.DepartmentEndocrinology, domain.DepartmentGeneralMedicine}},
	{"Confusion", 8, []domain.Department{domain.DepartmentNeurology, domain.DepartmentEmergency}},
	{"Bleeding", 8, []domain.Department{domain.DepartmentEmergency}},
}

var conditionTable = []ConditionRule{
	{"Diabetes", 3},
	{"Hypertension", 4},
	{"Heart Disease", 5},
	{"Asthma", 3},
	{"COPD", 4},
	{"Cancer", 5},
	{"Stroke History", 5},
	{"Kidney Disease", 4},
	{"Liver Disease", 4},
	{"Obesity", 2},
	{"Depression", 2},
	{"Epilepsy", 3},
	{"None", 0},
}

var (
	symptomIndex   = make(map[string]int, len(symptomTable))
	conditionIndex = make(map[string]int, len(conditionTable))
)

func init() {
	for i, r := range symptomTable {
		symptomIndex[r.ID] = i
	}
	for i, r := range conditionTable {
		conditionIndex[r.ID] = i
	}
}

// Symptom returns the rule for id. The returned rule does not share its
// department slice with the table.
func Symptom(id string) (SymptomRule, bool) {
	i, ok := symptomIndex[id]
	if !ok {
		return SymptomRule{}, false
	}
	return symptomTable[i].clone(), true
}

// Condition returns the rule for id.
func Condition(id string) (ConditionRule, bool) {
	i, ok := conditionIndex[id]
	if !ok {
		return ConditionRule{}, false
	}
	return conditionTable[i], true
}

// Symptoms returns a copy of the symptom table in table order.
func Symptoms() []SymptomRule {
	out := make([]SymptomRule, len(symptomTable))
	for i, r := range symptomTable {
		out[i] = r.clone()
	}
	return out
}

// Conditions returns a copy of the condition table in table order.
func Conditions() []ConditionRule {
	return append([]ConditionRule(nil), conditionTable...)
}

// SymptomIDs lists the symptom vocabulary in table order.
func SymptomIDs() []string {
	ids := make([]string, len(symptomTable))
	for i, r := range symptomTable {
		ids[i] = r.ID
	}
	return ids
}

// ConditionIDs lists the condition vocabulary in table order.
func ConditionIDs() []string {
	ids := make([]string, len(conditionTable))
	for i, r := range conditionTable {
		ids[i] = r.ID
	}
	return ids
}

func (r SymptomRule) clone() SymptomRule {
	r.Departments = append([]domain.Department(nil), r.Departments...)
	return r
}
