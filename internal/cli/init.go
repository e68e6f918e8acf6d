// Package cli provides common CLI initialization utilities.
// This package consolidates the bootstrap shared by cmd/sitefin,
// cmd/sitefin-mirror and cmd/sitectl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sitefin/internal/config"
	applog "sitefin/internal/log"
	"sitefin/internal/storage"
)

// SetupLogger initializes structured logging at the given LOG_LEVEL and sets
// it as the default logger. Unknown levels fall back to info.
func SetupLogger(level string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info log level", "error", err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration and validates it.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenSQLite opens the ledger database, running migrations first.
func OpenSQLite(dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger database %s: %w", dbPath, err)
	}
	return repo, nil
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := OpenSQLite(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has run.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
