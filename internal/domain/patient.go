package domain

import (
	"encoding/json"
	"fmt"
)

// Physiologic bounds used by caller-side validation. Every vital must be
// supplied; the engine has no notion of an unmeasured vital.
const (
	MaxAge              = 150
	MaxSystolicBP       = 300
	MaxDiastolicBP      = 250
	MaxHeartRate        = 300
	MinTemperature      = 20.0
	MaxTemperature      = 45.0
	MaxOxygenSaturation = 100.0
)

// PatientRecord is the intake record handed to the scoring engine.
// It is treated as immutable once constructed.
type PatientRecord struct {
	PatientID string `json:"patient_id,omitempty"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    Gender `json:"gender"`

	Symptoms []string `json:"symptoms"`

	SystolicBP       int     `json:"systolic_bp"`
	DiastolicBP      int     `json:"diastolic_bp"`
	HeartRate        int     `json:"heart_rate"`
	Temperature      float64 `json:"temperature"`
	OxygenSaturation float64 `json:"oxygen_saturation"`

	PreExistingConditions []string `json:"pre_existing_conditions"`

	EmergencyContacts []EmergencyContact `json:"emergency_contacts,omitempty"`
}

// EmergencyContact is carried with the record; it never affects scoring.
type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

// UnmarshalJSON rejects a record without an age. A decoded zero is a
// newborn, so an absent or null age cannot be left to default.
func (p *PatientRecord) UnmarshalJSON(data []byte) error {
	type plain PatientRecord
	aux := struct {
		*plain
		Age *int `json:"age"`
	}{plain: (*plain)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Age == nil {
		return fmt.Errorf("patient validation: %w", NewValidationError("age", "is required", nil))
	}
	p.Age = *aux.Age
	return nil
}

// Validate rejects malformed intake before it reaches the engine.
// Unknown symptom and condition identifiers are not an error.
func (p *PatientRecord) Validate() error {
	if p.Age < 0 || p.Age > MaxAge {
		return fmt.Errorf("patient validation: %w", NewValidationError("age", fmt.Sprintf("must be between 0 and %d", MaxAge), p.Age))
	}

	if !p.Gender.IsValid() {
		return fmt.Errorf("patient validation: %w", NewValidationError("gender", ErrInvalidGender.Error(), p.Gender))
	}

	if p.SystolicBP <= 0 || p.SystolicBP > MaxSystolicBP {
		return fmt.Errorf("patient validation: %w", NewValidationError("systolic_bp", fmt.Sprintf("must be between 1 and %d mmHg", MaxSystolicBP), p.SystolicBP))
	}

	if p.DiastolicBP <= 0 || p.DiastolicBP > MaxDiastolicBP {
		return fmt.Errorf("patient validation: %w", NewValidationError("diastolic_bp", fmt.Sprintf("must be between 1 and %d mmHg", MaxDiastolicBP), p.DiastolicBP))
	}

	if p.HeartRate <= 0 || p.HeartRate > MaxHeartRate {
		return fmt.Errorf("patient validation: %w", NewValidationError("heart_rate", fmt.Sprintf("must be between 1 and %d bpm", MaxHeartRate), p.HeartRate))
	}

	if p.Temperature < MinTemperature || p.Temperature > MaxTemperature {
		return fmt.Errorf("patient validation: %w", NewValidationError("temperature", fmt.Sprintf("must be between %.0f and %.0f °C", MinTemperature, MaxTemperature), p.Temperature))
	}

	if p.OxygenSaturation <= 0 || p.OxygenSaturation > MaxOxygenSaturation {
		return fmt.Errorf("patient validation: %w", NewValidationError("oxygen_saturation", "must be a percentage above 0 and at most 100", p.OxygenSaturation))
	}

	for i, c := range p.EmergencyContacts {
		if c.Name == "" && c.Phone == "" {
			return fmt.Errorf("patient validation: %w", NewValidationError(fmt.Sprintf("emergency_contacts[%d]", i), "name or phone is required", c))
		}
	}

	return nil
}

// LogFields returns non-identifying fields for audit logs.
func (p *PatientRecord) LogFields() map[string]any {
	return map[string]any{
		"patient_id":      p.PatientID,
		"age":             p.Age,
		"symptom_count":   len(p.Symptoms),
		"condition_count": len(p.PreExistingConditions),
	}
}
