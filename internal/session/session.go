// Package session carries a patient record and its assessment from the intake
// step to the results step. Sessions are short-lived and expire on their own;
// callers may also clear them explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/domain"
)

// DefaultTTL is how long a session lives when no TTL is configured.
const DefaultTTL = 30 * time.Minute

// ErrSessionNotFound is returned for unknown, cleared and expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is the context handed from intake to results.
type Session struct {
	ID        string                  `json:"id"`
	Patient   domain.PatientRecord    `json:"patient"`
	Result    domain.TriageResult     `json:"result"`
	Source    domain.AssessmentSource `json:"source"`
	Advisory  string                  `json:"advisory,omitempty"`
	RuleSet   string                  `json:"rule_set"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the storage backend for sessions.
type Store interface {
	// Save stores the session until its ExpiresAt.
	Save(ctx context.Context, s *Session) error

	// Get returns ErrSessionNotFound for missing or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Manager creates sessions with fresh identifiers and a fixed lifetime.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewManager wraps a store.
func NewManager(store Store, ttl time.Duration, logger *logrus.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create starts a session for an assessed patient.
func (m *Manager) Create(ctx context.Context, patient domain.PatientRecord, assessment *domain.Assessment) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.New().String(),
		Patient:   patient,
		Result:    assessment.Result,
		Source:    assessment.Source,
		Advisory:  assessment.Advisory,
		RuleSet:   assessment.RuleSet,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"risk_level": s.Result.RiskLevel,
		"expires_at": s.ExpiresAt,
	}).Debug("Created triage session")

	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	return m.store.Get(ctx, id)
}

// Clear removes a session.
func (m *Manager) Clear(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.WithField("session_id", id).Debug("Cleared triage session")
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// NewStore builds the backend named in the session configuration.
func NewStore(ctx context.Context, config domain.SessionConfig) (Store, error) {
	switch config.Backend {
	case "", "memory":
		return NewMemoryStore(config.MaxItems, config.TTL), nil
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			URL:       config.RedisURL,
			KeyPrefix: config.KeyPrefix,
			PoolSize:  config.PoolSize,
		})
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", config.Backend)
	}
}
