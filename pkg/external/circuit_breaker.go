package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/triage-risk-engine/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests uint32        `json:"max_requests"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
}

// ErrServiceUnavailable wraps gobreaker.ErrOpenState for callers.
var ErrServiceUnavailable = errors.New("predictive service unavailable (circuit breaker open)")

// ResilientPredictor wraps the predictive client with a circuit breaker and
// an optional prediction cache. It implements domain.RemotePredictor.
type ResilientPredictor struct {
	client  *PredictiveClient
	cache   PredictionCache
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientPredictor creates the breaker-guarded predictor. cache may be nil.
func NewResilientPredictor(client *PredictiveClient, cache PredictionCache, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientPredictor {
	if config.MaxRequests == 0 {
		config.MaxRequests = 5
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PredictiveService",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the service.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientPredictor{
		client:  client,
		cache:   cache,
		breaker: breaker,
		logger:  logger,
	}
}

// Triage queries /triage through the breaker. Risk depends on vitals, so it
// is never served from cache.
func (r *ResilientPredictor) Triage(ctx context.Context, patient *domain.PatientRecord) (*domain.RemoteTriage, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Triage(ctx, patient)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrServiceUnavailable
		}
		return nil, fmt.Errorf("triage query failed: %w", err)
	}

	return result.(*domain.RemoteTriage), nil
}

// Predict queries /predict through the breaker, falling back to the cache
// while the breaker is open.
func (r *ResilientPredictor) Predict(ctx context.Context, symptoms []string) (*domain.RemotePrediction, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Predict(ctx, symptoms)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if cached, found := r.cached(ctx, symptoms); found {
				return cached, nil
			}
			return nil, ErrServiceUnavailable
		}
		return nil, fmt.Errorf("predict query failed: %w", err)
	}

	data := result.(*domain.RemotePrediction)

	if r.cache != nil {
		if cacheErr := r.cache.Set(ctx, symptoms, data); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache prediction")
		}
	}

	return data, nil
}

// Health queries /health directly, bypassing the breaker so probes can
// observe recovery while it is open.
func (r *ResilientPredictor) Health(ctx context.Context) (*HealthResponse, error) {
	return r.client.Health(ctx)
}

// State returns the current breaker state.
func (r *ResilientPredictor) State() gobreaker.State {
	return r.breaker.State()
}

// Counts returns the breaker counters for the current interval.
func (r *ResilientPredictor) Counts() gobreaker.Counts {
	return r.breaker.Counts()
}

// Close releases the cache.
func (r *ResilientPredictor) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

func (r *ResilientPredictor) cached(ctx context.Context, symptoms []string) (*domain.RemotePrediction, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, found, err := r.cache.Get(ctx, symptoms)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read prediction cache")
		return nil, false
	}
	return data, found
}
