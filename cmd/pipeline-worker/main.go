package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/runner"
)

func main() {
	// Settings come from .env (if present) and the environment
	settings := config.Load()
	logger.Configure(settings.LogLevel, settings.LogJSON)
	log := logger.Log

	r, err := runner.New(runner.FromSettings(settings))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pipeline runner")
	}

	handler := r.APIHandler()
	if settings.MetricsEnabled {
		handler = r.Handler()
	}

	server := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", settings.HTTPAddr).
			Str("storage", settings.Storage.Backend).
			Bool("metrics", settings.MetricsEnabled).
			Msg("pipeline worker starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// In-flight invocations are allowed to finish, including their cleanup
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
