package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/feedback"
	"github.com/triage-risk-engine/internal/rules"
)

// Tool names.
const (
	ToolClassifyPatient = "classify_patient"
	ToolListVocabulary  = "list_vocabulary"
	ToolSubmitFeedback  = "submit_feedback"
)

// VocabularyParams is empty; list_vocabulary takes no arguments.
type VocabularyParams struct{}

// FeedbackParams is the submit_feedback input. Omitted clinician choices
// default to the suggestion.
type FeedbackParams struct {
	SessionID           string            `json:"session_id" jsonschema:"triage session the feedback refers to"`
	PatientID           string            `json:"patient_id,omitempty"`
	SuggestedRiskLevel  domain.RiskLevel  `json:"suggested_risk_level" jsonschema:"risk tier returned by classify_patient"`
	SuggestedDepartment domain.Department `json:"suggested_department" jsonschema:"department returned by classify_patient"`
	ClinicianRiskLevel  domain.RiskLevel  `json:"clinician_risk_level,omitempty"`
	ClinicianDepartment domain.Department `json:"clinician_department,omitempty"`
	Clinician           string            `json:"clinician,omitempty"`
	Notes               string            `json:"notes,omitempty"`
}

// FeedbackAck confirms a stored feedback entry.
type FeedbackAck struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Agreed    bool   `json:"agreed"`
}

func (s *Server) registerTools() int {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolClassifyPatient,
		Description: "Score a patient intake record against the local triage rules. " +
			"Returns the risk tier, confidence, recommended department, contributing factors and recommendations.",
	}, s.classifyPatient)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListVocabulary,
		Description: "List the recognized symptoms, pre-existing conditions, departments and genders with the rule set version.",
	}, s.listVocabulary)

	count := 2
	if s.feedback != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        ToolSubmitFeedback,
			Description: "Record whether the treating clinician agreed with a triage suggestion. Saving again for the same session updates the entry.",
		}, s.submitFeedback)
		count++
	}

	return count
}

func (s *Server) classifyPatient(_ context.Context, _ *mcp.CallToolRequest, record domain.PatientRecord) (*mcp.CallToolResult, domain.TriageResult, error) {
	result, err := s.triage.Classify(record)
	if err != nil {
		s.logger.WithError(err).WithField("tool_name", ToolClassifyPatient).Warn("Rejected patient record")
		return nil, domain.TriageResult{}, err
	}

	fields := logrus.Fields(result.LogFields())
	fields["tool_name"] = ToolClassifyPatient
	s.logger.WithFields(fields).Info("Patient classified")

	return nil, result, nil
}

func (s *Server) listVocabulary(_ context.Context, _ *mcp.CallToolRequest, _ VocabularyParams) (*mcp.CallToolResult, rules.Listing, error) {
	return nil, rules.Vocabulary(), nil
}

func (s *Server) submitFeedback(ctx context.Context, _ *mcp.CallToolRequest, params FeedbackParams) (*mcp.CallToolResult, FeedbackAck, error) {
	entry := &feedback.Feedback{
		SessionID:           params.SessionID,
		PatientID:           params.PatientID,
		SuggestedRiskLevel:  params.SuggestedRiskLevel,
		SuggestedDepartment: params.SuggestedDepartment,
		ClinicianRiskLevel:  params.ClinicianRiskLevel,
		ClinicianDepartment: params.ClinicianDepartment,
		Clinician:           params.Clinician,
		RuleSet:             rules.Version,
		Notes:               params.Notes,
	}

	if err := s.feedback.Save(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("session_id", params.SessionID).Warn("Failed to save feedback")
		return nil, FeedbackAck{}, fmt.Errorf("save feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tool_name":  ToolSubmitFeedback,
		"session_id": entry.SessionID,
		"agreed":     entry.Agreed,
	}).Info("Feedback recorded")

	return nil, FeedbackAck{ID: entry.ID, SessionID: entry.SessionID, Agreed: entry.Agreed}, nil
}
