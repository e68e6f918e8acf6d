package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"sitefin/internal/backend"
	"sitefin/internal/cli"
	"sitefin/internal/config"
	apphttp "sitefin/internal/http"
	applog "sitefin/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger backend", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, res.Ledger, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              res.Store.Ping,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	go func() {
		logger.Info("Starting sitefin server",
			"port", cfg.Port,
			"count_policy", cfg.CountPolicy,
			"cache", cfg.CacheBackend,
			"amqp_enabled", cfg.AMQPURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			_ = res.Cleanup()
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
