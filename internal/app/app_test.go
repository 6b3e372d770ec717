package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/health"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func localConfig(t *testing.T) *domain.Config {
	return &domain.Config{
		Session: domain.SessionConfig{
			Backend:  "memory",
			TTL:      time.Minute,
			MaxItems: 10,
		},
		Feedback: domain.FeedbackConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "feedback.db"),
		},
		MCP: domain.MCPConfig{ServerVersion: "test"},
	}
}

func TestBuild_LocalOnly(t *testing.T) {
	a, err := Build(context.Background(), localConfig(t), quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Assessments)
	require.NotNil(t, a.Feedback)
	require.NotNil(t, a.Sessions)

	status := a.Health.RunChecks(context.Background())
	assert.Equal(t, health.HealthStateHealthy, status.Overall)
	assert.Contains(t, status.Components, "rule_tables")
	assert.Contains(t, status.Components, "feedback_store")
	assert.NotContains(t, status.Components, "remote_predictor")
}

func TestBuild_WithRemote(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","models_loaded":true}`))
	}))
	defer backend.Close()

	cfg := localConfig(t)
	cfg.Remote = domain.RemoteConfig{BaseURL: backend.URL, Timeout: time.Second, RateLimit: 10}

	a, err := Build(context.Background(), cfg, quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Remote)

	status := a.Health.RunChecks(context.Background())
	require.Contains(t, status.Components, "remote_predictor")
	assert.Equal(t, health.HealthStateHealthy, status.Components["remote_predictor"].Status)
}

func TestBuild_UnsupportedBackend(t *testing.T) {
	cfg := localConfig(t)
	cfg.Feedback.Driver = "mongodb"

	a, err := Build(context.Background(), cfg, quietLogger(), Options{})
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestApp_CloseIsRepeatable(t *testing.T) {
	a, err := Build(context.Background(), localConfig(t), quietLogger(), Options{})
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestApp_ReleaseLogsCleanupError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	a := &App{
		Logger: logger,
		Health: health.NewHealthChecker(health.HealthConfig{}, logger),
	}
	closed := false
	a.closers = []func() error{
		func() error { closed = true; return nil },
		func() error { return errors.New("sqlite: database is locked") },
	}

	a.release()

	assert.True(t, closed, "remaining closers still run after a failure")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Data[logrus.ErrorKey].(error).Error(), "database is locked")
}
