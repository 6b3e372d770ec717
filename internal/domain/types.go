// Package domain contains the core entities of patient triage: intake records,
// triage results and the enumerations shared between the scoring engine and
// the collaborators that store, transport and render its output.
package domain

import (
	"errors"
)

// RiskLevel is the coarse triage tier derived from the total weighted score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// RiskLevels lists the tiers from least to most urgent.
var RiskLevels = []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh}

// Impact is the weight tier of a single contributing factor.
type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

// Department identifies the clinical department a patient is routed to.
type Department string

const (
	DepartmentGeneralMedicine  Department = "General Medicine"
	DepartmentCardiology       Department = "Cardiology"
	DepartmentNeurology        Department = "Neurology"
	DepartmentPulmonology      Department = "Pulmonology"
	DepartmentEmergency        Department = "Emergency"
	DepartmentOrthopedics      Department = "Orthopedics"
	DepartmentGastroenterology Department = "Gastroenterology"
	DepartmentEndocrinology    Department = "Endocrinology"
	DepartmentPsychiatry       Department = "Psychiatry"
	DepartmentDermatology      Department = "Dermatology"
)

// Departments lists every canonical department.
var Departments = []Department{
	DepartmentGeneralMedicine,
	DepartmentCardiology,
	DepartmentNeurology,
	DepartmentPulmonology,
	DepartmentEmergency,
	DepartmentOrthopedics,
	DepartmentGastroenterology,
	DepartmentEndocrinology,
	DepartmentPsychiatry,
	DepartmentDermatology,
}

// Gender of the patient as captured at intake.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// AssessmentSource records which classifier produced the headline fields of
// an assessment.
type AssessmentSource string

const (
	// SourceLocal means every field came from the rule-table engine.
	SourceLocal AssessmentSource = "local"
	// SourceHybrid means risk, department or confidence were taken from the
	// remote predictive service while the explanation stayed local.
	SourceHybrid AssessmentSource = "hybrid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRiskLevel  = errors.New("invalid risk level")
	ErrInvalidImpact     = errors.New("invalid impact tier")
	ErrInvalidDepartment = errors.New("invalid department")
	ErrInvalidGender     = errors.New("invalid gender")
)

// IsValid reports whether the risk level is one of Low, Medium or High.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	default:
		return false
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

// WaitTimePriority maps the tier onto the queue priority (1 is most urgent).
func (r RiskLevel) WaitTimePriority() int {
	switch r {
	case RiskLevelHigh:
		return 1
	case RiskLevelMedium:
		return 2
	default:
		return 3
	}
}

// LogFields returns structured logging fields for audit trails.
func (r RiskLevel) LogFields() map[string]any {
	return map[string]any{
		"risk_level":         string(r),
		"is_valid":           r.IsValid(),
		"wait_time_priority": r.WaitTimePriority(),
		"requires_action":    r.RequiresImmediateAction(),
	}
}

// RequiresImmediateAction reports whether the tier needs the emergency team.
// Unknown tiers are treated as urgent.
func (r RiskLevel) RequiresImmediateAction() bool {
	switch r {
	case RiskLevelMedium, RiskLevelLow:
		return false
	default:
		return true
	}
}

// Rank orders impact tiers for sorting: High first.
func (i Impact) Rank() int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	case ImpactLow:
		return 2
	default:
		return 3
	}
}

func (i Impact) IsValid() bool {
	switch i {
	case ImpactHigh, ImpactMedium, ImpactLow:
		return true
	default:
		return false
	}
}

func (i Impact) String() string {
	return string(i)
}

// IsValid reports whether d is one of the canonical departments.
func (d Department) IsValid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

func (d Department) String() string {
	return string(d)
}

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

func (s AssessmentSource) String() string {
	return string(s)
}
