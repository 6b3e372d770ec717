package feedback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-risk-engine/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	return store
}

func testFeedback(sessionID string) *Feedback {
	return &Feedback{
		SessionID:           sessionID,
		PatientID:           "P-1001",
		SuggestedRiskLevel:  domain.RiskLevelMedium,
		SuggestedDepartment: domain.DepartmentCardiology,
		Clinician:           "dr.okafor",
		RuleSet:             "2024.1",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	fb := testFeedback("session-1")
	fb.ClinicianRiskLevel = domain.RiskLevelHigh
	fb.Notes = "ECG changes on arrival"

	err := store.Save(context.Background(), fb)

	require.NoError(t, err)
	assert.NotZero(t, fb.ID, "ID should be assigned")
	assert.False(t, fb.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, fb.UpdatedAt.IsZero(), "UpdatedAt should be set")
	assert.False(t, fb.Agreed)
	assert.Equal(t, domain.DepartmentCardiology, fb.ClinicianDepartment, "omitted department defaults to the suggestion")
}

func TestSQLiteStore_Save_Invalid(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	tests := []struct {
		name  string
		fb    *Feedback
		field string
	}{
		{"missing session", &Feedback{SuggestedRiskLevel: domain.RiskLevelLow, SuggestedDepartment: domain.DepartmentNeurology}, "session_id"},
		{"bad suggested level", &Feedback{SessionID: "s", SuggestedRiskLevel: "Critical", SuggestedDepartment: domain.DepartmentNeurology}, "suggested_risk_level"},
		{"bad suggested department", &Feedback{SessionID: "s", SuggestedRiskLevel: domain.RiskLevelLow, SuggestedDepartment: "Oncology"}, "suggested_department"},
		{"bad clinician department", &Feedback{SessionID: "s", SuggestedRiskLevel: domain.RiskLevelLow, SuggestedDepartment: domain.DepartmentNeurology, ClinicianDepartment: "Oncology"}, "clinician_department"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Save(context.Background(), tt.fb)
			require.Error(t, err)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	fb := testFeedback("session-1")
	require.NoError(t, store.Save(ctx, fb))
	assert.True(t, fb.Agreed)
	originalID := fb.ID

	updated := testFeedback("session-1")
	updated.ClinicianRiskLevel = domain.RiskLevelHigh
	updated.ClinicianDepartment = domain.DepartmentEmergency
	updated.Notes = "Deteriorated in waiting room"
	require.NoError(t, store.Save(ctx, updated))

	assert.Equal(t, originalID, updated.ID, "ID should remain the same on update")

	got, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RiskLevelHigh, got.ClinicianRiskLevel)
	assert.Equal(t, domain.DepartmentEmergency, got.ClinicianDepartment)
	assert.False(t, got.Agreed)
	assert.Equal(t, "Deteriorated in waiting room", got.Notes)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Get(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	fb := testFeedback("session-7")
	fb.Notes = "agreed"
	require.NoError(t, store.Save(ctx, fb))

	got, err := store.Get(ctx, "session-7")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fb.ID, got.ID)
	assert.Equal(t, "P-1001", got.PatientID)
	assert.Equal(t, domain.RiskLevelMedium, got.SuggestedRiskLevel)
	assert.Equal(t, domain.DepartmentCardiology, got.SuggestedDepartment)
	assert.Equal(t, domain.RiskLevelMedium, got.ClinicianRiskLevel)
	assert.True(t, got.Agreed)
	assert.Equal(t, "dr.okafor", got.Clinician)
	assert.Equal(t, "2024.1", got.RuleSet)
	assert.Equal(t, "agreed", got.Notes)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	got, err := store.Get(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, testFeedback(fmt.Sprintf("session-%d", i))))
	}

	list, err := store.List(ctx, 10, 0)

	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "session-2", list[0].SessionID, "newest first")
}

func TestSQLiteStore_List_Pagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, testFeedback(fmt.Sprintf("session-%d", i))))
	}

	page1, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	page2, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	page3, err := store.List(ctx, 2, 4)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}

func TestSQLiteStore_Count(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, store.Save(ctx, testFeedback("a")))
	require.NoError(t, store.Save(ctx, testFeedback("b")))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	fb := testFeedback("session-del")
	require.NoError(t, store.Save(ctx, fb))

	require.NoError(t, store.Delete(ctx, fb.ID))

	got, err := store.Get(ctx, "session-del")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testFeedback("session-x")))

	var buf bytes.Buffer
	err := store.ExportJSON(ctx, &buf)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 1`)
	assert.Contains(t, buf.String(), `"session_id": "session-x"`)
}

func TestSQLiteStore_ExportJSON_Empty(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"feedback": []`)
}

func TestSQLiteStore_ImportJSON(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, testFeedback("s1")))
	require.NoError(t, source.Save(ctx, testFeedback("s2")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	target := createTestStore(t)
	defer target.Close()

	imported, skipped, err := target.ImportJSON(ctx, &buf)

	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	got, err := target.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DepartmentCardiology, got.SuggestedDepartment)
}

func TestSQLiteStore_ImportJSON_SkipDuplicates(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testFeedback("s1")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	imported, skipped, err := store.ImportJSON(ctx, &buf)

	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}

func TestSQLiteStore_ImportJSON_Malformed(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewBufferString("{not json"))
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(domain.FeedbackConfig{SQLitePath: filepath.Join(t.TempDir(), "fb.db")})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)

	_, err = NewStore(domain.FeedbackConfig{Driver: "mongo"})
	assert.Error(t, err)
}
