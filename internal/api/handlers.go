package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/feedback"
	"github.com/triage-risk-engine/internal/health"
	"github.com/triage-risk-engine/internal/middleware"
	"github.com/triage-risk-engine/internal/rules"
	"github.com/triage-risk-engine/internal/session"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// TriageResponse is returned by POST /api/v1/triage.
type TriageResponse struct {
	SessionID string                  `json:"session_id"`
	Result    domain.TriageResult     `json:"result"`
	Source    domain.AssessmentSource `json:"source"`
	Advisory  string                  `json:"advisory,omitempty"`
	RuleSet   string                  `json:"rule_set"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// FeedbackRequest is the body of POST /api/v1/feedback. The suggested fields
// are only read when the session and its stored assessment are both gone.
type FeedbackRequest struct {
	SessionID           string            `json:"session_id" binding:"required"`
	SuggestedRiskLevel  domain.RiskLevel  `json:"suggested_risk_level"`
	SuggestedDepartment domain.Department `json:"suggested_department"`
	ClinicianRiskLevel  domain.RiskLevel  `json:"clinician_risk_level"`
	ClinicianDepartment domain.Department `json:"clinician_department"`
	Clinician           string            `json:"clinician"`
	Notes               string            `json:"notes"`
}

// FeedbackPage is returned by GET /api/v1/feedback.
type FeedbackPage struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Total    int64                `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    health.HealthStateHealthy,
			"timestamp": time.Now().UTC(),
			"version":   s.configManager.GetConfig().MCP.ServerVersion,
			"rule_set":  rules.Version,
		})
		return
	}

	status := s.deps.Health.GetStatus()
	if status.CheckCount == 0 {
		status = s.deps.Health.RunChecks(c.Request.Context())
	}

	httpStatus := http.StatusOK
	if status.Overall == health.HealthStateUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, status)
}

func (s *Server) handleVocabulary(c *gin.Context) {
	c.JSON(http.StatusOK, rules.Vocabulary())
}

func (s *Server) handleTriage(c *gin.Context) {
	record, ok := s.bindRecord(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	assessment, err := s.deps.Triage.Assess(ctx, record)
	if err != nil {
		s.abortValidation(c, err)
		return
	}

	sess, err := s.deps.Sessions.Create(ctx, record, assessment)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to store session", err)
		return
	}
	c.Set("session_id", sess.ID)

	if s.deps.Assessments != nil {
		stored := domain.NewAssessmentRecord(sess.ID, record.PatientID, assessment)
		if err := s.deps.Assessments.Create(ctx, stored); err != nil {
			// Leave no session behind for an assessment that was not recorded.
			if clearErr := s.deps.Sessions.Clear(ctx, sess.ID); clearErr != nil {
				s.logger.WithError(clearErr).WithField("session_id", sess.ID).Warn("Failed to clear session")
			}
			s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to record assessment", err)
			return
		}
	}

	c.JSON(http.StatusCreated, TriageResponse{
		SessionID: sess.ID,
		Result:    sess.Result,
		Source:    sess.Source,
		Advisory:  sess.Advisory,
		RuleSet:   sess.RuleSet,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) handleClassify(c *gin.Context) {
	record, ok := s.bindRecord(c)
	if !ok {
		return
	}

	result, err := s.deps.Triage.Classify(record)
	if err != nil {
		s.abortValidation(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetSession(c *gin.Context) {
	id := c.Param("id")
	c.Set("session_id", id)

	sess, err := s.deps.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.abort(c, http.StatusNotFound, domain.ErrSessionNotFound, "Session not found or expired", nil)
			return
		}
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to load session", err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleClearSession(c *gin.Context) {
	id := c.Param("id")
	c.Set("session_id", id)

	if err := s.deps.Sessions.Clear(c.Request.Context(), id); err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to clear session", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	if s.deps.Assessments == nil {
		s.abort(c, http.StatusNotFound, domain.ErrSessionNotFound, "Assessment storage is not configured", nil)
		return
	}

	id := c.Param("session_id")
	c.Set("session_id", id)

	record, err := s.deps.Assessments.GetBySession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abort(c, http.StatusNotFound, domain.ErrSessionNotFound, "No assessment recorded for session", nil)
			return
		}
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to load assessment", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) handleSaveFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.abort(c, http.StatusServiceUnavailable, domain.ErrStorage, "Feedback storage is not configured", nil)
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed feedback", err)
		return
	}
	c.Set("session_id", req.SessionID)

	fb := &feedback.Feedback{
		SessionID:           req.SessionID,
		SuggestedRiskLevel:  req.SuggestedRiskLevel,
		SuggestedDepartment: req.SuggestedDepartment,
		ClinicianRiskLevel:  req.ClinicianRiskLevel,
		ClinicianDepartment: req.ClinicianDepartment,
		Clinician:           req.Clinician,
		Notes:               req.Notes,
		RuleSet:             rules.Version,
	}
	s.fillSuggestion(c, fb)

	if err := s.deps.Feedback.Save(c.Request.Context(), fb); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.abortValidation(c, err)
			return
		}
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to save feedback", err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": fb.SessionID,
		"agreed":     fb.Agreed,
	}).Info("Clinician feedback recorded")

	c.JSON(http.StatusCreated, fb)
}

// fillSuggestion takes the suggested tier and department from the live
// session, or the stored assessment, over anything the client sent.
func (s *Server) fillSuggestion(c *gin.Context, fb *feedback.Feedback) {
	ctx := c.Request.Context()

	if sess, err := s.deps.Sessions.Get(ctx, fb.SessionID); err == nil {
		fb.SuggestedRiskLevel = sess.Result.RiskLevel
		fb.SuggestedDepartment = sess.Result.Department
		fb.PatientID = sess.Patient.PatientID
		fb.RuleSet = sess.RuleSet
		return
	}

	if s.deps.Assessments == nil {
		return
	}
	if record, err := s.deps.Assessments.GetBySession(ctx, fb.SessionID); err == nil {
		fb.SuggestedRiskLevel = record.RiskLevel
		fb.SuggestedDepartment = record.Department
		fb.PatientID = record.PatientID
		fb.RuleSet = record.RuleSet
	}
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.abort(c, http.StatusServiceUnavailable, domain.ErrStorage, "Feedback storage is not configured", nil)
		return
	}

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "limit must be between 1 and 500", err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "offset must be a non-negative integer", err)
		return
	}

	ctx := c.Request.Context()
	list, err := s.deps.Feedback.List(ctx, limit, offset)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to list feedback", err)
		return
	}
	total, err := s.deps.Feedback.Count(ctx)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to count feedback", err)
		return
	}
	if list == nil {
		list = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, FeedbackPage{Feedback: list, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleExportFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.abort(c, http.StatusServiceUnavailable, domain.ErrStorage, "Feedback storage is not configured", nil)
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="feedback.json"`)
	if err := s.deps.Feedback.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Failed to export feedback")
		if !c.Writer.Written() {
			s.abort(c, http.StatusInternalServerError, domain.ErrStorage, "Failed to export feedback", err)
		}
	}
}

// bindRecord decodes the request body. A missing required field is a
// validation error; anything else that fails to decode is malformed input.
func (s *Server) bindRecord(c *gin.Context) (domain.PatientRecord, bool) {
	var record domain.PatientRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.abortValidation(c, err)
			return record, false
		}
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed patient record", err)
		return record, false
	}
	return record, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) abortValidation(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError(domain.ErrValidation, vErr.Message, vErr.Field, c.GetString(middleware.CorrelationIDKey)),
			"field": vErr.Field,
		})
		return
	}
	s.abort(c, http.StatusInternalServerError, domain.ErrInternalServer, "Assessment failed", err)
}

func (s *Server) abort(c *gin.Context, status int, code, message string, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	details := ""
	if err != nil {
		if status >= http.StatusInternalServerError {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": requestID,
				"code":           code,
			}).WithError(err).Error(message)
		} else {
			details = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": domain.NewAPIError(code, message, details, requestID)})
}
