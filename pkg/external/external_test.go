package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-risk-engine/internal/domain"
)

func pct(v float64) *float64 { return &v }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testPatient() *domain.PatientRecord {
	return &domain.PatientRecord{
		Name:             "Jane Doe",
		Age:              54,
		Gender:           domain.GenderFemale,
		Symptoms:         []string{"Chest Pain", "Dizziness"},
		SystolicBP:       150,
		DiastolicBP:      95,
		HeartRate:        88,
		Temperature:      37.2,
		OxygenSaturation: 97,
	}
}

func TestPredictiveClient_Triage(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/triage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_level": "High"}`))
	}))
	defer server.Close()

	client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL + "/", Timeout: 5 * time.Second, RateLimit: 100})

	result, err := client.Triage(context.Background(), testPatient())
	require.NoError(t, err)
	assert.Equal(t, "High", result.RiskLevel)

	assert.Equal(t, "Jane Doe", received["Name"])
	assert.Equal(t, float64(54), received["Age"])
	assert.Equal(t, "Female", received["Gender"])
	assert.Equal(t, float64(150), received["Systolic_BP"])
	assert.Equal(t, float64(95), received["Diastolic_BP"])
	assert.Equal(t, float64(88), received["Heart_Rate"])
	assert.Equal(t, 37.2, received["Temperature"])
	assert.Equal(t, "Chest Pain, Dizziness", received["Symptoms"])
}

func TestPredictiveClient_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Chest Pain, Palpitations", body["symptoms"])

		w.Write([]byte(`{
			"Emergency": true,
			"Message": "Call emergency services",
			"System": "cardiovascular",
			"Top 3 Recommendations": [
				{"Department": "Emergency Medicine", "Final Confidence (%)": 87.6},
				{"Department": "Cardiology", "Final Confidence (%)": 10.1}
			]
		}`))
	}))
	defer server.Close()

	client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 100})

	result, err := client.Predict(context.Background(), []string{"Chest Pain", "Palpitations"})
	require.NoError(t, err)
	assert.True(t, result.Emergency)
	assert.Equal(t, "Call emergency services", result.Message)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "Emergency Medicine", result.Recommendations[0].Department)
	require.NotNil(t, result.Recommendations[0].Confidence)
	assert.InDelta(t, 87.6, *result.Recommendations[0].Confidence, 0.001)
}

func TestPredictiveClient_Errors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.Triage(context.Background(), testPatient())

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, "/triage", statusErr.Endpoint)
		assert.Equal(t, "model not loaded", statusErr.Body)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.Predict(context.Background(), []string{"Cough"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse /predict response")
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewPredictiveClient(PredictiveConfig{})
		_, err := client.Health(context.Background())
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.Health(ctx)
		require.Error(t, err)
	})
}

func TestPredictiveClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"status":"ok","models_loaded":true}`))
	}))
	defer server.Close()

	client := NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 100})
	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.ModelsLoaded)
}

func TestResilientPredictor_BreakerOpensAndServesCache(t *testing.T) {
	var failing atomic.Bool
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"System":"respiratory","Top 3 Recommendations":[{"Department":"Pulmonology","Final Confidence (%)":71}]}`))
	}))
	defer server.Close()

	cache, err := NewMemoryPredictionCache(16, time.Minute)
	require.NoError(t, err)

	predictor := NewResilientPredictor(
		NewPredictiveClient(PredictiveConfig{BaseURL: server.URL, RateLimit: 1000}),
		cache,
		CircuitBreakerConfig{Timeout: time.Minute},
		testLogger(),
	)
	defer predictor.Close()

	symptoms := []string{"Cough"}
	first, err := predictor.Predict(context.Background(), symptoms)
	require.NoError(t, err)
	assert.Equal(t, "Pulmonology", first.Recommendations[0].Department)
	assert.Equal(t, 1, cache.Len())

	// One success then two failures crosses the 60% failure ratio.
	failing.Store(true)
	for i := 0; i < 2; i++ {
		_, err := predictor.Predict(context.Background(), symptoms)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, predictor.State())

	before := calls.Load()
	cached, err := predictor.Predict(context.Background(), symptoms)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the service")

	_, err = predictor.Predict(context.Background(), []string{"Fever"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = predictor.Triage(context.Background(), testPatient())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestMemoryPredictionCache_Expiry(t *testing.T) {
	cache, err := NewMemoryPredictionCache(2, time.Minute)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	prediction := &domain.RemotePrediction{System: "neuro"}
	require.NoError(t, cache.Set(ctx, []string{"Numbness"}, prediction))

	got, found, err := cache.Get(ctx, []string{"Numbness"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prediction, got)

	_, found, _ = cache.Get(ctx, []string{"Numbness", "Confusion"})
	assert.False(t, found, "different symptom lists use different keys")

	now = now.Add(2 * time.Minute)
	_, found, err = cache.Get(ctx, []string{"Numbness"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, cache.Len())
}

func TestMemoryPredictionCache_Eviction(t *testing.T) {
	cache, err := NewMemoryPredictionCache(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	for _, s := range []string{"Cough", "Fever", "Nausea"} {
		require.NoError(t, cache.Set(ctx, []string{s}, &domain.RemotePrediction{System: s}))
	}

	assert.Equal(t, 2, cache.Len())
	_, found, _ := cache.Get(ctx, []string{"Cough"})
	assert.False(t, found)
}

func TestRedisPredictionCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	ctx := context.Background()
	cache, err := NewRedisPredictionCache(ctx, CacheConfig{RedisURL: redisURL, KeyPrefix: "test-" + time.Now().Format("150405.000"), DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer cache.Close()

	prediction := &domain.RemotePrediction{System: "gi", Recommendations: []domain.RemoteDepartment{{Department: "Gastroenterology", Confidence: pct(64)}}}
	require.NoError(t, cache.Set(ctx, []string{"Nausea"}, prediction))

	got, found, err := cache.Get(ctx, []string{"Nausea"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prediction, got)

	_, found, err = cache.Get(ctx, []string{"Bleeding"})
	require.NoError(t, err)
	assert.False(t, found)
}
