package service

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/rules"
)

// departmentVote is one entry of the ordered vote tally. The tally is a slice
// so the first department to reach the maximum wins a tie.
type departmentVote struct {
	department domain.Department
	votes      float64
}

// scorecard holds the accumulators of a single classification pass.
type scorecard struct {
	total   float64
	votes   []departmentVote
	factors []domain.ContributingFactor
}

func (s *scorecard) add(score float64, factor, description string, impact domain.Impact) {
	s.total += score
	s.factors = append(s.factors, domain.ContributingFactor{
		Factor:      factor,
		Impact:      impact,
		Description: description,
	})
}

func (s *scorecard) vote(department domain.Department, weight float64) {
	for i := range s.votes {
		if s.votes[i].department == department {
			s.votes[i].votes += weight
			return
		}
	}
	s.votes = append(s.votes, departmentVote{department: department, votes: weight})
}

// leader returns the department with the highest tally, or the default
// department when nothing voted.
func (s *scorecard) leader() domain.Department {
	best := rules.DefaultDepartment
	top := 0.0
	for _, v := range s.votes {
		if v.votes > top {
			best, top = v.department, v.votes
		}
	}
	return best
}

// Classify turns a patient record into a triage result. It reads only the
// static rule tables and the record, never fails and is safe for concurrent
// use.
func Classify(record domain.PatientRecord) domain.TriageResult {
	card := score(record)

	level := rules.RiskLevelFor(card.total)

	// Impact tiers only; insertion order is kept within a tier.
	factors := card.factors
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Impact.Rank() < factors[j].Impact.Rank()
	})
	if factors == nil {
		factors = []domain.ContributingFactor{}
	}

	return domain.TriageResult{
		RiskLevel:           level,
		ConfidenceScore:     confidence(card.total),
		Department:          card.leader(),
		ContributingFactors: factors,
		Recommendations:     rules.Recommendations(level),
		WaitTimePriority:    level.WaitTimePriority(),
	}
}

func confidence(total float64) int {
	c := int(math.Round(rules.ConfidenceBase + total/rules.ConfidenceScale*rules.ConfidenceSpan))
	if c > rules.ConfidenceCeiling {
		return rules.ConfidenceCeiling
	}
	return c
}

func score(record domain.PatientRecord) *scorecard {
	card := &scorecard{}

	scoreAge(card, record.Age)
	scoreSymptoms(card, record.Symptoms)
	scoreVitals(card, record)
	scoreConditions(card, record.PreExistingConditions)

	return card
}

func scoreAge(card *scorecard, age int) {
	if age > rules.ElderlyAge {
		card.add(rules.ElderlyScore, "Age > 65", "Elderly patients are at higher risk for complications", domain.ImpactMedium)
	} else if age > rules.MiddleAge {
		card.add(rules.MiddleAgeScore, "Age 50-65", "Middle-aged patients have moderate risk factors", domain.ImpactLow)
	}
	if age < rules.YoungChildAge {
		card.add(rules.ChildScore, "Age < 5", "Very young patients require careful monitoring", domain.ImpactMedium)
	}
}

func scoreSymptoms(card *scorecard, symptoms []string) {
	for _, id := range unique(symptoms) {
		rule, ok := rules.Symptom(id)
		if !ok {
			continue
		}

		for _, dept := range rule.Departments {
			card.vote(dept, rule.Severity)
		}

		switch {
		case rule.Severity >= rules.HighSeverity:
			card.add(rule.Severity, id, id+" is a high-severity symptom requiring immediate attention", domain.ImpactHigh)
		case rule.Severity >= rules.MediumSeverity:
			card.add(rule.Severity, id, id+" contributes to moderate risk assessment", domain.ImpactMedium)
		default:
			card.add(rule.Severity, id, id+" is a low-severity symptom", domain.ImpactLow)
		}
	}
}

func scoreVitals(card *scorecard, r domain.PatientRecord) {
	bp := fmt.Sprintf("%d/%d", r.SystolicBP, r.DiastolicBP)
	if r.SystolicBP > rules.CriticalSystolic || r.DiastolicBP > rules.CriticalDiastolic {
		card.add(rules.CriticalBPScore, "Critical Blood Pressure", "BP "+bp+" is dangerously high", domain.ImpactHigh)
		card.vote(domain.DepartmentCardiology, rules.CriticalBPVote)
		card.vote(domain.DepartmentEmergency, rules.CriticalBPVote)
	} else if r.SystolicBP > rules.ElevatedSystolic || r.DiastolicBP > rules.ElevatedDiastolic {
		card.add(rules.ElevatedBPScore, "Elevated Blood Pressure", "BP "+bp+" is above normal", domain.ImpactMedium)
		card.vote(domain.DepartmentCardiology, rules.ElevatedBPVote)
	}

	if r.HeartRate > rules.TachycardiaRate || r.HeartRate < rules.BradycardiaRate {
		card.add(rules.AbnormalHeartScore, "Abnormal Heart Rate",
			fmt.Sprintf("Heart rate of %d bpm is outside normal range", r.HeartRate), domain.ImpactHigh)
		card.vote(domain.DepartmentCardiology, rules.AbnormalHeartVote)
	} else if r.HeartRate > rules.ElevatedRate {
		card.add(rules.ElevatedHeartScore, "Elevated Heart Rate",
			fmt.Sprintf("Heart rate of %d bpm is mildly elevated", r.HeartRate), domain.ImpactMedium)
	}

	temp := strconv.FormatFloat(r.Temperature, 'f', -1, 64)
	if r.Temperature > rules.HighFeverTemp {
		card.add(rules.HighFeverScore, "High Fever", "Temperature of "+temp+"°C indicates significant infection", domain.ImpactHigh)
	} else if r.Temperature > rules.MildFeverTemp {
		card.add(rules.MildFeverScore, "Mild Fever", "Temperature of "+temp+"°C indicates mild fever", domain.ImpactMedium)
	}

	spo2 := strconv.FormatFloat(r.OxygenSaturation, 'f', -1, 64)
	if r.OxygenSaturation < rules.CriticalSaturation {
		card.add(rules.CriticalSaturationScore, "Critical Oxygen Saturation", "SpO2 of "+spo2+"% requires immediate oxygen support", domain.ImpactHigh)
		card.vote(domain.DepartmentEmergency, rules.CriticalEmergencyVote)
		card.vote(domain.DepartmentPulmonology, rules.CriticalPulmonologyVote)
	} else if r.OxygenSaturation < rules.LowSaturation {
		card.add(rules.LowSaturationScore, "Low Oxygen Saturation", "SpO2 of "+spo2+"% is below normal", domain.ImpactMedium)
	}
}

func scoreConditions(card *scorecard, conditions []string) {
	for _, id := range unique(conditions) {
		rule, ok := rules.Condition(id)
		if !ok || rule.Weight <= 0 {
			continue
		}

		impact := domain.ImpactLow
		switch {
		case rule.Weight >= rules.HighConditionWeight:
			impact = domain.ImpactHigh
		case rule.Weight >= rules.MediumConditionWeight:
			impact = domain.ImpactMedium
		}
		card.add(rule.Weight, id, "Pre-existing "+id+" increases complexity of care", impact)
	}
}

// unique keeps the first occurrence of each id.
func unique(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
