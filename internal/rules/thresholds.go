package rules

import (
	"github.com/triage-risk-engine/internal/domain"
)

// Risk tier cut-offs on the total weighted score.
const (
	HighRiskScore   = 20.0
	MediumRiskScore = 10.0
)

// Confidence derivation: min(ConfidenceCeiling, round(ConfidenceBase + total/ConfidenceScale*ConfidenceSpan)).
const (
	ConfidenceBase    = 60.0
	ConfidenceSpan    = 35.0
	ConfidenceScale   = 50.0
	ConfidenceCeiling = 95
)

// Severity bands for symptom factors.
const (
	HighSeverity   = 7.0
	MediumSeverity = 4.0
)

// Weight bands for pre-existing condition factors.
const (
	HighConditionWeight   = 4.0
	MediumConditionWeight = 3.0
)

// Age bands.
const (
	ElderlyAge     = 65
	MiddleAge      = 50
	YoungChildAge  = 5
	ElderlyScore   = 3.0
	MiddleAgeScore = 1.5
	ChildScore     = 2.0
)

// Blood pressure thresholds in mmHg.
const (
	CriticalSystolic  = 180
	CriticalDiastolic = 120
	ElevatedSystolic  = 140
	ElevatedDiastolic = 90
	CriticalBPScore   = 5.0
	CriticalBPVote    = 5.0
	ElevatedBPScore   = 2.5
	ElevatedBPVote    = 2.0
)

// Heart rate thresholds in bpm.
const (
	TachycardiaRate    = 120
	BradycardiaRate    = 50
	ElevatedRate       = 100
	AbnormalHeartScore = 4.0
	AbnormalHeartVote  = 4.0
	ElevatedHeartScore = 2.0
)

// Temperature thresholds in degrees Celsius.
const (
	HighFeverTemp  = 39.5
	MildFeverTemp  = 38.0
	HighFeverScore = 4.0
	MildFeverScore = 2.0
)

// Oxygen saturation thresholds in percent.
const (
	CriticalSaturation      = 90.0
	LowSaturation           = 95.0
	CriticalSaturationScore = 6.0
	CriticalEmergencyVote   = 6.0
	CriticalPulmonologyVote = 4.0
	LowSaturationScore      = 3.0
)

// DefaultDepartment is used when nothing voted.
const DefaultDepartment = domain.DepartmentGeneralMedicine

var recommendations = map[domain.RiskLevel][]string{
	domain.RiskLevelHigh: {
		"Immediate medical attention required",
		"Prepare emergency response team",
		"Continuous vital sign monitoring",
	},
	domain.RiskLevelMedium: {
		"Schedule priority consultation",
		"Monitor vitals every 30 minutes",
		"Review medication history",
	},
	domain.RiskLevelLow: {
		"Standard consultation recommended",
		"Routine vital checks",
		"Follow-up appointment in 1-2 weeks",
	},
}

// Recommendations returns a fresh copy of the fixed action list for a tier.
// Unknown tiers get the Low list.
func Recommendations(level domain.RiskLevel) []string {
	recs, ok := recommendations[level]
	if !ok {
		recs = recommendations[domain.RiskLevelLow]
	}
	return append([]string(nil), recs...)
}

// RiskLevelFor maps a total score onto its tier.
func RiskLevelFor(total float64) domain.RiskLevel {
	switch {
	case total >= HighRiskScore:
		return domain.RiskLevelHigh
	case total >= MediumRiskScore:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}
