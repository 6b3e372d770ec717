// Package repository persists completed triage assessments in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/domain"
)

// AssessmentRepository handles assessment persistence
type AssessmentRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var _ domain.AssessmentRepository = (*AssessmentRepository)(nil)

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *pgxpool.Pool, logger *logrus.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a completed assessment. An empty ID is assigned a UUID
// and a zero CreatedAt is set to now.
func (r *AssessmentRepository) Create(ctx context.Context, record *domain.AssessmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	id, err := uuid.Parse(record.ID)
	if err != nil {
		return fmt.Errorf("invalid assessment id %q: %w", record.ID, err)
	}

	result, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("encoding assessment result: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, session_id, patient_id, risk_level, department,
			confidence_score, source, rule_set, result, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.db.Exec(ctx, query,
		id,
		record.SessionID,
		record.PatientID,
		string(record.RiskLevel),
		string(record.Department),
		record.Confidence,
		string(record.Source),
		record.RuleSet,
		result,
		record.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": record.ID,
			"session_id":    record.SessionID,
			"error":         err,
		}).Error("Failed to create assessment")
		return fmt.Errorf("creating assessment: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id": record.ID,
		"session_id":    record.SessionID,
		"risk_level":    record.RiskLevel,
		"department":    record.Department,
	}).Info("Assessment stored")

	return nil
}

const selectAssessment = `
	SELECT id::text, session_id, patient_id, risk_level, department,
		   confidence_score, source, rule_set, result, created_at
	FROM assessments`

// GetBySession retrieves the assessment recorded for a session
func (r *AssessmentRepository) GetBySession(ctx context.Context, sessionID string) (*domain.AssessmentRecord, error) {
	record, err := scanAssessment(r.db.QueryRow(ctx, selectAssessment+" WHERE session_id = $1", sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("assessment not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Failed to get assessment by session")
		return nil, fmt.Errorf("getting assessment by session: %w", err)
	}
	return record, nil
}

// ListByPatient returns a patient's assessments, newest first
func (r *AssessmentRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*domain.AssessmentRecord, error) {
	rows, err := r.db.Query(ctx,
		selectAssessment+" WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing assessments by patient: %w", err)
	}
	defer rows.Close()

	var records []*domain.AssessmentRecord
	for rows.Next() {
		record, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assessment row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assessment rows: %w", err)
	}

	return records, nil
}

// CountByRiskLevel returns how many assessments landed in each tier.
func (r *AssessmentRepository) CountByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT risk_level, COUNT(*) FROM assessments GROUP BY risk_level")
	if err != nil {
		return nil, fmt.Errorf("counting assessments: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RiskLevel]int64, len(domain.RiskLevels))
	for _, level := range domain.RiskLevels {
		counts[level] = 0
	}
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[domain.RiskLevel(level)] = n
	}

	return counts, rows.Err()
}

func scanAssessment(row pgx.Row) (*domain.AssessmentRecord, error) {
	var record domain.AssessmentRecord
	var riskLevel, department, source string
	var result []byte

	err := row.Scan(
		&record.ID,
		&record.SessionID,
		&record.PatientID,
		&riskLevel,
		&department,
		&record.Confidence,
		&source,
		&record.RuleSet,
		&result,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.RiskLevel = domain.RiskLevel(riskLevel)
	record.Department = domain.Department(department)
	record.Source = domain.AssessmentSource(source)

	if err := json.Unmarshal(result, &record.Result); err != nil {
		return nil, fmt.Errorf("decoding assessment result: %w", err)
	}

	return &record, nil
}
