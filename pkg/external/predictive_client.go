package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/triage-risk-engine/internal/domain"
)

// PredictiveClient talks to the remote predictive service that offers a
// second opinion on risk and department.
type PredictiveClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// PredictiveConfig represents configuration for the predictive service client
type PredictiveConfig struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// triageRequest is the body of POST /triage. Field names follow the service.
type triageRequest struct {
	Name        string  `json:"Name,omitempty"`
	Age         int     `json:"Age"`
	Gender      string  `json:"Gender,omitempty"`
	SystolicBP  int     `json:"Systolic_BP"`
	DiastolicBP int     `json:"Diastolic_BP"`
	HeartRate   int     `json:"Heart_Rate"`
	Temperature float64 `json:"Temperature"`
	Symptoms    string  `json:"Symptoms"`
}

type predictRequest struct {
	Symptoms string `json:"symptoms"`
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("predictive service %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ErrNotConfigured is returned by every call when no base URL is set.
var ErrNotConfigured = errors.New("predictive service base URL not configured")

// NewPredictiveClient creates a new predictive service client
func NewPredictiveClient(config PredictiveConfig) *PredictiveClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	return &PredictiveClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Health calls GET /health.
func (p *PredictiveClient) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := p.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Triage asks the service for a risk level.
func (p *PredictiveClient) Triage(ctx context.Context, patient *domain.PatientRecord) (*domain.RemoteTriage, error) {
	body := triageRequest{
		Name:        patient.Name,
		Age:         patient.Age,
		Gender:      string(patient.Gender),
		SystolicBP:  patient.SystolicBP,
		DiastolicBP: patient.DiastolicBP,
		HeartRate:   patient.HeartRate,
		Temperature: patient.Temperature,
		Symptoms:    JoinSymptoms(patient.Symptoms),
	}

	var out domain.RemoteTriage
	if err := p.do(ctx, http.MethodPost, "/triage", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict asks the service for its ranked department recommendations.
func (p *PredictiveClient) Predict(ctx context.Context, symptoms []string) (*domain.RemotePrediction, error) {
	var out domain.RemotePrediction
	if err := p.do(ctx, http.MethodPost, "/predict", predictRequest{Symptoms: JoinSymptoms(symptoms)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinSymptoms renders symptoms the way the service expects them.
func JoinSymptoms(symptoms []string) string {
	return strings.Join(symptoms, ", ")
}

func (p *PredictiveClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	if p.baseURL == "" {
		return ErrNotConfigured
	}

	if err := p.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Triage-Risk-Engine/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}

	return nil
}
