package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/frameio-archiver/internal/api"
	"github.com/andresuchdata/frameio-archiver/internal/app"
	"github.com/andresuchdata/frameio-archiver/internal/config"
	"github.com/andresuchdata/frameio-archiver/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetFormat(cfg.Log.Format)
	logger.SetLevel(cfg.Log.Level)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize archiver")
	}

	if err := application.VerifyBuckets(ctx, cfg); err != nil {
		logger.Log.Warn().Err(err).Msg("Destination check failed, jobs writing there will fail")
	}

	services := &api.Services{
		Archiver: application.Service,
		Tree:     application.Source,
	}
	if application.Importer != nil {
		services.Importer = application.Importer
	}
	router := api.NewRouter(services, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebhookSecret:  cfg.Source.WebhookSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().
			Str("port", cfg.Server.Port).
			Str("provider", cfg.Source.Provider).
			Strs("destinations", application.Service.DestinationNames()).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	// Stop accepting requests first, then cancel running jobs and wait for
	// their reports to be written.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := application.Service.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Archive jobs did not stop in time")
	}
	if err := application.Close(); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to close report store")
	}

	logger.Log.Info().Msg("Server exiting")
	os.Exit(0)
}
