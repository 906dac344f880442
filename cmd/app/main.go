package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/router"
	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/logger"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/joho/godotenv"
)

// @title Profile Photo API
// @version 1.0
// @description Credit-metered profile photo generation with Stripe billing
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		// Logger is not configured yet; LOG_LEVEL may live in the .env file.
		l := logger.New()
		l.Warn().Msg("Warning: no .env file found")
	}
	logger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	if err := service.LoadSecrets(context.Background(), cfg); err != nil {
		logger.Fatal().Msgf("Error resolving secrets: %v", err)
	}

	// 2. Build router (and get DB pool)
	app, err := router.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer app.Close()

	// 3. Create HTTP server. Generation requests wait on the upstream model,
	// so the write timeout follows the generation timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start server in a goroutine
	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	logger.Info().Msg("Server shut down gracefully")
}
