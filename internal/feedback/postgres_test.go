package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-risk-engine/internal/domain"
)

var mockColumns = []string{
	"id", "session_id", "patient_id",
	"suggested_risk_level", "suggested_department",
	"clinician_risk_level", "clinician_department", "agreed",
	"clinician", "rule_set", "notes", "created_at", "updated_at",
}

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO feedback (.+) ON CONFLICT \\(session_id\\) DO UPDATE (.+) RETURNING id, created_at").
		WithArgs("session-1", "P-1001", "Medium", "Cardiology", "High", "Cardiology", false,
			"dr.okafor", "2024.1", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(42, created))

	fb := testFeedback("session-1")
	fb.ClinicianRiskLevel = domain.RiskLevelHigh

	err := store.Save(context.Background(), fb)

	require.NoError(t, err)
	assert.Equal(t, int64(42), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_InvalidSkipsQuery(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	err := store.Save(context.Background(), &Feedback{SessionID: "s"})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_DatabaseError(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectQuery("INSERT INTO feedback").WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), testFeedback("session-1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save feedback")
}

func TestPostgresStore_Get_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM feedback WHERE session_id = \\$1").
		WithArgs("session-9").
		WillReturnRows(sqlmock.NewRows(mockColumns).AddRow(
			7, "session-9", "P-9", "High", "Emergency", "High", "Emergency", true,
			"dr.ruiz", "2024.1", "", now, now))

	got, err := store.Get(context.Background(), "session-9")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, domain.RiskLevelHigh, got.SuggestedRiskLevel)
	assert.Equal(t, domain.DepartmentEmergency, got.ClinicianDepartment)
	assert.True(t, got.Agreed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT (.+) FROM feedback WHERE session_id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(mockColumns))

	got, err := store.Get(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresStore_List_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM feedback ORDER BY created_at DESC, id DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows(mockColumns).
			AddRow(2, "b", "", "Low", "Dermatology", "Low", "Dermatology", true, "", "2024.1", "", now, now).
			AddRow(1, "a", "", "Low", "General Medicine", "Medium", "General Medicine", false, "", "2024.1", "", now, now))

	list, err := store.List(context.Background(), 2, 0)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].SessionID)
	assert.Equal(t, domain.RiskLevelMedium, list[1].ClinicianRiskLevel)
}

func TestPostgresStore_Count_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM feedback").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPostgresStore_Delete_Mock(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectExec("DELETE FROM feedback WHERE id = \\$1").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// getTestDB returns a database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			patient_id TEXT DEFAULT '',
			suggested_risk_level TEXT NOT NULL,
			suggested_department TEXT NOT NULL,
			clinician_risk_level TEXT NOT NULL,
			clinician_department TEXT NOT NULL,
			agreed BOOLEAN NOT NULL DEFAULT FALSE,
			clinician TEXT DEFAULT '',
			rule_set TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM feedback")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_SaveUpdate(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	fb := testFeedback("pg-session")
	require.NoError(t, store.Save(ctx, fb))
	originalID := fb.ID

	updated := testFeedback("pg-session")
	updated.ClinicianDepartment = domain.DepartmentEmergency
	require.NoError(t, store.Save(ctx, updated))
	assert.Equal(t, originalID, updated.ID)

	got, err := store.Get(ctx, "pg-session")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DepartmentEmergency, got.ClinicianDepartment)
	assert.False(t, got.Agreed)
}

func TestPostgresStore_ListCountDelete(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	var last *Feedback
	for i := 0; i < 3; i++ {
		last = testFeedback(fmt.Sprintf("pg-%d", i))
		require.NoError(t, store.Save(ctx, last))
	}

	list, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, store.Delete(ctx, last.ID))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
