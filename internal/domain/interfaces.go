package domain

import (
	"context"
)

// RemoteTriage is the risk opinion returned by the remote predictive service.
type RemoteTriage struct {
	RiskLevel string `json:"risk_level"`
}

// RemoteDepartment is one ranked department suggestion from the remote
// predictive service. Confidence is nil when the service omits it.
type RemoteDepartment struct {
	Department string   `json:"Department"`
	Confidence *float64 `json:"Final Confidence (%),omitempty"`
}

// RemotePrediction is the department prediction returned by the remote
// predictive service.
type RemotePrediction struct {
	Emergency       bool               `json:"Emergency,omitempty"`
	Message         string             `json:"Message,omitempty"`
	System          string             `json:"System"`
	Recommendations []RemoteDepartment `json:"Top 3 Recommendations"`
}

// RemotePredictor is the remote classifier the triage service may prefer
// over the local engine when it is reachable.
type RemotePredictor interface {
	Triage(ctx context.Context, patient *PatientRecord) (*RemoteTriage, error)
	Predict(ctx context.Context, symptoms []string) (*RemotePrediction, error)
}

// AssessmentRepository persists completed assessments.
type AssessmentRepository interface {
	Create(ctx context.Context, record *AssessmentRecord) error
	GetBySession(ctx context.Context, sessionID string) (*AssessmentRecord, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetSessionConfig() *SessionConfig
	GetRemoteConfig() *RemoteConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
