package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/triage-risk-engine/internal/api"
	"github.com/triage-risk-engine/internal/app"
	"github.com/triage-risk-engine/internal/config"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger, app.Options{Migrate: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	components.Health.Start(ctx)

	server := api.NewServer(configManager, api.Dependencies{
		Triage:            components.Triage,
		Sessions:          components.Sessions,
		Feedback:          components.Feedback,
		Assessments:       components.Assessments,
		Health:            components.Health,
		RequestsPerSecond: cfg.Server.RateLimit,
	}, logger)

	logger.WithField("address", cfg.Server.Host).WithField("port", cfg.Server.Port).Info("Starting triage API server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
