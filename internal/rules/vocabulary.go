package rules

import "github.com/triage-risk-engine/internal/domain"

// Listing is the full vocabulary a client needs to build an intake form.
type Listing struct {
	Version     string              `json:"rule_set"`
	Symptoms    []SymptomRule       `json:"symptoms"`
	Conditions  []ConditionRule     `json:"conditions"`
	Departments []domain.Department `json:"departments"`
	Genders     []domain.Gender     `json:"genders"`
}

// Vocabulary returns a copy of the tables in their canonical order.
func Vocabulary() Listing {
	return Listing{
		Version:     Version,
		Symptoms:    Symptoms(),
		Conditions:  Conditions(),
		Departments: append([]domain.Department(nil), domain.Departments...),
		Genders:     []domain.Gender{domain.GenderMale, domain.GenderFemale, domain.GenderOther},
	}
}
