package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/rules"
)

// RemoteAdvisory is attached to assessments that fell back to the local
// engine because the predictive service could not be reached.
const RemoteAdvisory = "Backend unreachable. Using local assessment."

// DefaultEmergencyMessage is prepended when the service flags an emergency
// without a message of its own.
const DefaultEmergencyMessage = "Seek immediate care"

// backendDepartments maps the predictive service's department names onto the
// canonical set. Names outside this table become General Medicine.
var backendDepartments = map[string]domain.Department{
	"Emergency Medicine": domain.DepartmentEmergency,
	"General Medicine":   domain.DepartmentGeneralMedicine,
	"Cardiology":         domain.DepartmentCardiology,
	"Neurology":          domain.DepartmentNeurology,
	"Pulmonology":        domain.DepartmentPulmonology,
	"Orthopedics":        domain.DepartmentOrthopedics,
	"Gastroenterology":   domain.DepartmentGastroenterology,
	"Endocrinology":      domain.DepartmentEndocrinology,
	"Psychiatry":         domain.DepartmentPsychiatry,
	"Dermatology":        domain.DepartmentDermatology,
}

// MapDepartment converts a backend department name to a canonical department.
func MapDepartment(name string) domain.Department {
	if d, ok := backendDepartments[name]; ok {
		return d
	}
	return domain.DepartmentGeneralMedicine
}

// TriageService validates intake, runs the local engine and, when a remote
// predictor is configured, cross-checks the result against it.
type TriageService struct {
	logger        *logrus.Logger
	remote        domain.RemotePredictor
	remoteTimeout time.Duration
	now           func() time.Time
}

// NewTriageService creates a triage service. remote may be nil, in which case
// every assessment is purely local.
func NewTriageService(logger *logrus.Logger, remote domain.RemotePredictor, remoteTimeout time.Duration) *TriageService {
	if remoteTimeout == 0 {
		remoteTimeout = 10 * time.Second
	}
	return &TriageService{
		logger:        logger,
		remote:        remote,
		remoteTimeout: remoteTimeout,
		now:           time.Now,
	}
}

// Classify validates the record and returns the local engine's result.
func (s *TriageService) Classify(record domain.PatientRecord) (domain.TriageResult, error) {
	if err := record.Validate(); err != nil {
		return domain.TriageResult{}, err
	}
	return Classify(record), nil
}

// Assess validates the record, classifies it locally and merges the remote
// predictor's opinion when it answers. Remote failures never surface as
// errors; only validation does.
func (s *TriageService) Assess(ctx context.Context, record domain.PatientRecord) (*domain.Assessment, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	local := Classify(record)
	assessment := &domain.Assessment{
		Result:     local,
		Source:     domain.SourceLocal,
		RuleSet:    rules.Version,
		AssessedAt: s.now().UTC(),
	}

	if s.remote == nil {
		s.logAssessment(record, assessment)
		return assessment, nil
	}

	triage, prediction, err := s.queryRemote(ctx, &record)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields(record.LogFields())).Warn("Predictive service unavailable, using local assessment")
		assessment.Advisory = RemoteAdvisory
		s.logAssessment(record, assessment)
		return assessment, nil
	}

	assessment.Result = MergeRemote(local, triage, prediction)
	assessment.Source = domain.SourceHybrid
	s.logAssessment(record, assessment)

	return assessment, nil
}

// queryRemote calls /triage and /predict concurrently. Either failure fails both.
func (s *TriageService) queryRemote(ctx context.Context, record *domain.PatientRecord) (*domain.RemoteTriage, *domain.RemotePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	var (
		triage     *domain.RemoteTriage
		prediction *domain.RemotePrediction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		triage, err = s.remote.Triage(gctx, record)
		if err != nil {
			return fmt.Errorf("remote triage: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prediction, err = s.remote.Predict(gctx, record.Symptoms)
		if err != nil {
			return fmt.Errorf("remote predict: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if triage == nil || prediction == nil {
		return nil, nil, fmt.Errorf("predictive service returned an empty response")
	}

	return triage, prediction, nil
}

// MergeRemote overlays the remote opinion on the local result. Risk level,
// department and confidence may come from the service; factors, the
// recommendation skeleton and the wait-time priority are always local.
func MergeRemote(local domain.TriageResult, triage *domain.RemoteTriage, prediction *domain.RemotePrediction) domain.TriageResult {
	merged := local.Clone()

	if triage != nil {
		if level := domain.RiskLevel(triage.RiskLevel); level.IsValid() {
			merged.RiskLevel = level
		}
	}

	if prediction == nil {
		return merged
	}

	if len(prediction.Recommendations) > 0 && prediction.Recommendations[0].Department != "" {
		top := prediction.Recommendations[0]
		merged.Department = MapDepartment(top.Department)
		if top.Confidence != nil {
			merged.ConfidenceScore = clampConfidence(*top.Confidence)
		}
	}

	if prediction.Emergency {
		message := prediction.Message
		if message == "" {
			message = DefaultEmergencyMessage
		}
		merged.Recommendations = append([]string{message}, merged.Recommendations...)
	}

	return merged
}

func clampConfidence(c float64) int {
	if math.IsNaN(c) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(c))))
}

func (s *TriageService) logAssessment(record domain.PatientRecord, assessment *domain.Assessment) {
	fields := logrus.Fields(assessment.Result.LogFields())
	fields["patient_id"] = record.PatientID
	fields["source"] = assessment.Source.String()
	fields["rule_set"] = assessment.RuleSet
	s.logger.WithFields(fields).Info("Patient triage completed")
}
