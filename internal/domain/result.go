package domain

import (
	"time"
)

// ContributingFactor is one explanatory entry of a triage result.
type ContributingFactor struct {
	Factor      string `json:"factor"`
	Impact      Impact `json:"impact"`
	Description string `json:"description"`
}

// TriageResult is the immutable output of a single classification call.
type TriageResult struct {
	RiskLevel           RiskLevel            `json:"risk_level"`
	ConfidenceScore     int                  `json:"confidence_score"`
	Department          Department           `json:"department"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Recommendations     []string             `json:"recommendations"`
	WaitTimePriority    int                  `json:"wait_time_priority"`
}

// LogFields returns structured logging fields for audit trails.
func (r *TriageResult) LogFields() map[string]any {
	return map[string]any{
		"risk_level":         string(r.RiskLevel),
		"department":         string(r.Department),
		"confidence_score":   r.ConfidenceScore,
		"wait_time_priority": r.WaitTimePriority,
		"factor_count":       len(r.ContributingFactors),
	}
}

// Clone returns a deep copy so callers can adjust a result without sharing
// slices with the original.
func (r TriageResult) Clone() TriageResult {
	out := r
	out.ContributingFactors = append([]ContributingFactor(nil), r.ContributingFactors...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return out
}

// Assessment is what the triage service hands to the presentation layer: the
// result plus where its headline fields came from.
type Assessment struct {
	Result     TriageResult     `json:"result"`
	Source     AssessmentSource `json:"source"`
	Advisory   string           `json:"advisory,omitempty"`
	RuleSet    string           `json:"rule_set"`
	AssessedAt time.Time        `json:"assessed_at"`
}

// AssessmentRecord is a persisted assessment.
type AssessmentRecord struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	PatientID  string           `json:"patient_id,omitempty"`
	RiskLevel  RiskLevel        `json:"risk_level"`
	Department Department       `json:"department"`
	Confidence int              `json:"confidence_score"`
	Source     AssessmentSource `json:"source"`
	RuleSet    string           `json:"rule_set"`
	Result     TriageResult     `json:"result"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewAssessmentRecord flattens an assessment for storage under a session.
func NewAssessmentRecord(sessionID, patientID string, a *Assessment) *AssessmentRecord {
	return &AssessmentRecord{
		SessionID:  sessionID,
		PatientID:  patientID,
		RiskLevel:  a.Result.RiskLevel,
		Department: a.Result.Department,
		Confidence: a.Result.ConfidenceScore,
		Source:     a.Source,
		RuleSet:    a.RuleSet,
		Result:     a.Result.Clone(),
		CreatedAt:  a.AssessedAt,
	}
}
