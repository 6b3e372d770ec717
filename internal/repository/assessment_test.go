package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/triage-risk-engine/internal/database"
	"github.com/triage-risk-engine/internal/domain"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_CONTAINER_TESTS") != "" {
		t.Skip("skipping container-backed test")
	}

	ctx := context.Background()
	testPassword := "test_" + uuid.NewString()[:8]

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := domain.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		Username: "testuser",
		Password: testPassword,
		SSLMode:  "disable",
		MaxConns: 5,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)

	runner, err := database.NewMigrationRunner(database.URL(config), "../../migrations", logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))

	t.Cleanup(func() {
		runner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	return db
}

func newRepo(db *database.DB) *AssessmentRepository {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewAssessmentRepository(db.Pool, logger)
}

func testRecord(sessionID, patientID string, level domain.RiskLevel) *domain.AssessmentRecord {
	assessment := &domain.Assessment{
		Result: domain.TriageResult{
			RiskLevel:       level,
			ConfidenceScore: 70,
			Department:      domain.DepartmentCardiology,
			ContributingFactors: []domain.ContributingFactor{
				{Factor: "Symptom: chest_pain", Impact: domain.ImpactHigh, Description: "Severity score: 9"},
			},
			Recommendations:  []string{"Schedule appointment within 24-48 hours"},
			WaitTimePriority: level.WaitTimePriority(),
		},
		Source:     domain.SourceLocal,
		RuleSet:    "2024.1",
		AssessedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	return domain.NewAssessmentRecord(sessionID, patientID, assessment)
}

func TestAssessmentRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(db)
	ctx := context.Background()

	record := testRecord(uuid.NewString(), "P-1", domain.RiskLevelMedium)
	require.NoError(t, repo.Create(ctx, record))
	assert.NotEmpty(t, record.ID)

	got, err := repo.GetBySession(ctx, record.SessionID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, domain.RiskLevelMedium, got.RiskLevel)
	assert.Equal(t, domain.DepartmentCardiology, got.Department)
	assert.Equal(t, 70, got.Confidence)
	assert.Equal(t, domain.SourceLocal, got.Source)
	assert.Equal(t, record.Result, got.Result)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
}

func TestAssessmentRepository_DuplicateSession(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(db)
	ctx := context.Background()

	sessionID := uuid.NewString()
	require.NoError(t, repo.Create(ctx, testRecord(sessionID, "", domain.RiskLevelLow)))
	assert.Error(t, repo.Create(ctx, testRecord(sessionID, "", domain.RiskLevelLow)))
}

func TestAssessmentRepository_InvalidID(t *testing.T) {
	repo := NewAssessmentRepository(nil, logrus.New())

	record := testRecord("s", "", domain.RiskLevelLow)
	record.ID = "not-a-uuid"

	assert.Error(t, repo.Create(context.Background(), record))
}

func TestAssessmentRepository_GetBySession_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(db)

	_, err := repo.GetBySession(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAssessmentRepository_ListAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(db)
	ctx := context.Background()

	levels := []domain.RiskLevel{domain.RiskLevelLow, domain.RiskLevelHigh, domain.RiskLevelHigh}
	for i, level := range levels {
		record := testRecord(fmt.Sprintf("session-%d", i), "P-42", level)
		record.CreatedAt = record.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, record))
	}
	require.NoError(t, repo.Create(ctx, testRecord("other", "P-7", domain.RiskLevelMedium)))

	list, err := repo.ListByPatient(ctx, "P-42", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "session-2", list[0].SessionID, "newest first")

	page, err := repo.ListByPatient(ctx, "P-42", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "session-1", page[0].SessionID)

	counts, err := repo.CountByRiskLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.RiskLevel]int64{
		domain.RiskLevelLow:    1,
		domain.RiskLevelMedium: 1,
		domain.RiskLevelHigh:   2,
	}, counts)
}
