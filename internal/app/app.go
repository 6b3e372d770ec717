// Package app assembles the triage service and its stores from configuration.
// The HTTP server, the MCP server and the CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/database"
	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/feedback"
	"github.com/triage-risk-engine/internal/health"
	"github.com/triage-risk-engine/internal/repository"
	"github.com/triage-risk-engine/internal/service"
	"github.com/triage-risk-engine/internal/session"
	"github.com/triage-risk-engine/pkg/external"
)

const (
	predictionCacheSize   = 1024
	predictionCacheTTL    = time.Hour
	predictionCachePrefix = "triage:predict"
)

// Options controls optional start-up work.
type Options struct {
	// Migrate applies pending schema migrations before the assessment
	// repository is opened.
	Migrate bool
}

// App holds the assembled components. Feedback, Assessments and Remote are
// nil when not configured.
type App struct {
	Config      *domain.Config
	Logger      *logrus.Logger
	Triage      *service.TriageService
	Sessions    *session.Manager
	Feedback    feedback.Store
	Assessments domain.AssessmentRepository
	Remote      *external.ResilientPredictor
	Health      *health.HealthChecker

	closers []func() error
}

// Build opens every configured component. On error, whatever was already
// opened is closed again.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts Options) (a *App, err error) {
	a = &App{
		Config: cfg,
		Logger: logger,
		Health: health.NewHealthChecker(health.HealthConfig{Version: cfg.MCP.ServerVersion}, logger),
	}
	defer func() {
		if err != nil {
			a.release()
			a = nil
		}
	}()

	var remote domain.RemotePredictor
	if cfg.Remote.BaseURL != "" {
		predictor, err := a.buildRemote(ctx)
		if err != nil {
			return a, err
		}
		a.Remote = predictor
		remote = predictor
	}
	a.Triage = service.NewTriageService(logger, remote, cfg.Remote.Timeout)

	store, err := session.NewStore(ctx, cfg.Session)
	if err != nil {
		return a, fmt.Errorf("opening session store: %w", err)
	}
	a.Sessions = session.NewManager(store, cfg.Session.TTL, logger)
	a.closers = append(a.closers, a.Sessions.Close)

	if cfg.Session.Backend == "redis" {
		check, client, err := health.NewRedisHealthCheckFromURL(cfg.Session.RedisURL, 0)
		if err != nil {
			return a, err
		}
		a.Health.RegisterCheck(check)
		a.closers = append(a.closers, client.Close)
	}

	fb, err := feedback.NewStore(cfg.Feedback)
	if err != nil {
		return a, fmt.Errorf("opening feedback store: %w", err)
	}
	a.Feedback = fb
	a.closers = append(a.closers, fb.Close)
	a.Health.RegisterCheck(health.NewPingHealthCheck("feedback_store", fb.Ping, false, 0))

	if cfg.Database.Host != "" {
		if err := a.buildAssessments(ctx, opts); err != nil {
			return a, err
		}
	}

	logger.WithFields(logrus.Fields{
		"remote":          cfg.Remote.BaseURL != "",
		"session_backend": cfg.Session.Backend,
		"feedback_driver": cfg.Feedback.Driver,
		"assessments":     a.Assessments != nil,
	}).Info("Components initialized")

	return a, nil
}

func (a *App) buildRemote(ctx context.Context) (*external.ResilientPredictor, error) {
	cfg := a.Config

	client := external.NewPredictiveClient(external.PredictiveConfig{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
	})

	var cache external.PredictionCache
	if cfg.Session.Backend == "redis" {
		redisCache, err := external.NewRedisPredictionCache(ctx, external.CacheConfig{
			RedisURL:   cfg.Session.RedisURL,
			KeyPrefix:  predictionCachePrefix,
			PoolSize:   cfg.Session.PoolSize,
			DefaultTTL: predictionCacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening prediction cache: %w", err)
		}
		cache = redisCache
	} else {
		memCache, err := external.NewMemoryPredictionCache(predictionCacheSize, predictionCacheTTL)
		if err != nil {
			return nil, err
		}
		cache = memCache
	}

	predictor := external.NewResilientPredictor(client, cache, external.CircuitBreakerConfig{}, a.Logger)
	a.closers = append(a.closers, predictor.Close)
	a.Health.RegisterCheck(health.NewRemoteHealthCheck(predictor, cfg.Remote.Timeout))

	return predictor, nil
}

func (a *App) buildAssessments(ctx context.Context, opts Options) error {
	cfg := a.Config.Database

	if opts.Migrate {
		runner, err := database.NewMigrationRunner(database.URL(cfg), cfg.MigrationsPath, a.Logger)
		if err != nil {
			return err
		}
		err = runner.Up(ctx)
		closeErr := runner.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			a.Logger.WithError(closeErr).Warn("Failed to close migration runner")
		}
	}

	db, err := database.NewConnection(ctx, cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("opening assessment database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	a.Assessments = repository.NewAssessmentRepository(db.Pool, a.Logger)
	a.Health.RegisterCheck(health.NewPingHealthCheck("database", db.Health, true, 0))
	return nil
}

// release closes a partially built App, logging rather than returning the
// cleanup error so the start-up error stays the one reported.
func (a *App) release() {
	if err := a.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to release components after start-up error")
	}
}

// Close stops the health checker and releases components in reverse order.
func (a *App) Close() error {
	a.Health.Stop()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
