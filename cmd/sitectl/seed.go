package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"sitefin/internal/seed"
)

var flagDryRun bool

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load sites, transactions and transfers from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Validate the file without writing")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := seed.LoadFile(args[0])
	if err != nil {
		return err
	}
	if flagDryRun {
		progress("  %s is valid: %d sites, %d transfers\n", args[0], len(f.Sites), len(f.Transfers))
		return nil
	}

	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := seed.Apply(cmd.Context(), ledger, f)
	progress("  Created %d sites, %d transactions, %d transfers\n",
		report.Sites, report.Transactions, report.Transfers)

	keys := make([]string, 0, len(report.SiteIDs))
	for k := range report.SiteIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k, report.SiteIDs[k])
	}
	return err
}
