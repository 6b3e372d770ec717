// Package feedback stores clinician feedback on triage results: whether the
// treating clinician agreed with the suggested risk tier and department, and
// what they chose instead.
package feedback

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/triage-risk-engine/internal/domain"
)

// Feedback represents a clinician's review of one triage session.
type Feedback struct {
	ID                  int64             `json:"id,omitempty"`
	SessionID           string            `json:"session_id"`
	PatientID           string            `json:"patient_id,omitempty"`
	SuggestedRiskLevel  domain.RiskLevel  `json:"suggested_risk_level"`
	SuggestedDepartment domain.Department `json:"suggested_department"`
	ClinicianRiskLevel  domain.RiskLevel  `json:"clinician_risk_level"`
	ClinicianDepartment domain.Department `json:"clinician_department"`
	Agreed              bool              `json:"agreed"`
	Clinician           string            `json:"clinician,omitempty"`
	RuleSet             string            `json:"rule_set,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Normalize fills omitted clinician choices with the suggestion and derives
// Agreed, then validates the entry.
func (f *Feedback) Normalize() error {
	if f.SessionID == "" {
		return domain.NewValidationError("session_id", "is required", f.SessionID)
	}
	if !f.SuggestedRiskLevel.IsValid() {
		return domain.NewValidationError("suggested_risk_level", domain.ErrInvalidRiskLevel.Error(), f.SuggestedRiskLevel)
	}
	if !f.SuggestedDepartment.IsValid() {
		return domain.NewValidationError("suggested_department", domain.ErrInvalidDepartment.Error(), f.SuggestedDepartment)
	}

	if f.ClinicianRiskLevel == "" {
		f.ClinicianRiskLevel = f.SuggestedRiskLevel
	}
	if f.ClinicianDepartment == "" {
		f.ClinicianDepartment = f.SuggestedDepartment
	}
	if !f.ClinicianRiskLevel.IsValid() {
		return domain.NewValidationError("clinician_risk_level", domain.ErrInvalidRiskLevel.Error(), f.ClinicianRiskLevel)
	}
	if !f.ClinicianDepartment.IsValid() {
		return domain.NewValidationError("clinician_department", domain.ErrInvalidDepartment.Error(), f.ClinicianDepartment)
	}

	f.Agreed = f.ClinicianRiskLevel == f.SuggestedRiskLevel && f.ClinicianDepartment == f.SuggestedDepartment
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates clinician feedback. A session has at most one
	// feedback entry; saving again updates it.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the feedback for a session, or nil when there is none.
	Get(ctx context.Context, sessionID string) (*Feedback, error)

	// List returns all feedback entries with pagination, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

// NewStore opens the store named in the feedback configuration.
func NewStore(config domain.FeedbackConfig) (Store, error) {
	switch config.Driver {
	case "", "sqlite":
		return NewSQLiteStore(config.SQLitePath)
	case "postgres":
		return NewPostgresStoreFromURL(config.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported feedback driver: %s", config.Driver)
	}
}
