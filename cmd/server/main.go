package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonwealth/churn-pipeline/internal/config"
	"github.com/halcyonwealth/churn-pipeline/internal/database"
	"github.com/halcyonwealth/churn-pipeline/internal/pipeline"
	"github.com/halcyonwealth/churn-pipeline/internal/scheduler"
	"github.com/halcyonwealth/churn-pipeline/internal/server"
	"github.com/halcyonwealth/churn-pipeline/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting churn pipeline service")

	// Initialize results store
	db, err := database.New(cfg.ResultsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results store")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Assemble the pipeline
	runner, runs := pipeline.Wire(cfg, db, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	// Register scheduled runs when configured
	if cfg.RunSchedule != "" {
		job := scheduler.NewPipelineRunJob(runner, log)
		if err := sched.AddJob(cfg.RunSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Failed to register pipeline run job")
		}
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Runner:  runner,
		Runs:    runs,
		Config:  cfg,
		DevMode: cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
