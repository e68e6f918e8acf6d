package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sitefin/internal/backend"
	"sitefin/internal/cli"
	"sitefin/internal/config"
	"sitefin/internal/core"
	applog "sitefin/internal/log"
	"sitefin/internal/services"
)

var (
	flagDBPath  string
	flagPolicy  string
	flagQuiet   bool
	flagVerbose bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "sitectl",
	Short:         "Construction-site ledger admin CLI",
	Long:          "Inspect and repair site balances directly against the ledger database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	cli.LoadEnvFile()
	appConfig = config.Load()

	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", appConfig.SQLiteDBPath, "Path to the ledger SQLite database")
	rootCmd.PersistentFlags().StringVar(&flagPolicy, "policy", appConfig.CountPolicy, "Status counting policy (all|approved)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log backend activity to stderr")
}

// openLedger is the shared bootstrap used by every subcommand. It builds the
// same backend as the server (cache backend and AMQP publisher from the
// environment) so CLI writes reach the shared cache and the change
// subscribers. The returned func releases everything.
func openLedger(ctx context.Context) (*services.LedgerService, backend.CleanupFunc, error) {
	policy, err := core.ParseCountPolicy(flagPolicy)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := backend.FromAppConfig(appConfig)
	if err != nil {
		return nil, nil, err
	}
	cfg.SQLiteDBPath = flagDBPath
	cfg.CountPolicy = policy

	res, err := backend.NewFactory(cliLogger()).CreateBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Ledger, res.Cleanup, nil
}

// cliLogger keeps backend logs off stdout, where tables are printed.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return applog.New(applog.Config{
		Component: applog.ComponentCLI,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}).Logger
}

func progress(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
