package main

import (
	"context"
	"errors"
	"os"
	"time"

	"sitefin/internal/amqp"
	"sitefin/internal/cli"
	"sitefin/internal/config"
	"sitefin/internal/services"
	gsheet "sitefin/internal/sheets/google"
	"sitefin/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting sitefin-mirror")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Mirror configuration invalid", "error", err)
		os.Exit(1)
	}

	// The mirror only reads; summaries are served straight from the database
	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)
	defer repo.Close()
	ledger := services.NewLedgerService(repo, nil, nil, services.LedgerConfig{Policy: cfg.Policy()})

	sheetsClient, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(ledger, sheetsClient)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	// Catch up on anything changed while the worker was down
	if err := mirror.ResyncAll(ctx); err != nil {
		logger.Error("Startup resync failed", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeSummaryChanged(ctx, mirror.HandleSummaryChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.MirrorResyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sheetsClient.InvalidateRowCache()
				if err := mirror.ResyncAll(ctx); err != nil {
					logger.Error("Periodic resync failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Mirror worker stopped")
}
