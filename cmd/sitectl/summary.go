package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sitefin/internal/core"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <site-id>",
	Short: "Show the current balance summary of a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <site-id>",
	Short: "Rebuild one site summary from its active records",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecompute,
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rebuild every site summary",
	Args:  cobra.NoArgs,
	RunE:  runRepair,
}

func init() {
	rootCmd.AddCommand(summaryCmd, recomputeCmd, repairCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sum, err := ledger.GetSummary(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, sum)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sum, err := ledger.RecomputeSite(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, sum)
}

func runRepair(cmd *cobra.Command, _ []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	progress("  Recomputing every site...\n")
	report, err := ledger.RecomputeAll(cmd.Context())
	fmt.Printf("sites=%d recomputed=%d failed=%d duration=%s\n",
		report.Sites, report.Recomputed, report.Failed, report.Duration.Round(time.Millisecond))
	return err
}

func printSummary(out io.Writer, s core.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		label string
		value core.Money
	}{
		{"funds_received", s.FundsReceived},
		{"funds_received_from_supervisor", s.FundsReceivedFromSupervisor},
		{"total_expenses", s.TotalExpenses},
		{"total_advances", s.TotalAdvances},
		{"total_invoices", s.TotalInvoices},
		{"advance_paid_to_supervisor", s.AdvancePaidToSupervisor},
		{"balance", s.Balance},
	}
	fmt.Fprintf(w, "site\t%s\t\n", s.SiteID)
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t\n", r.label, r.value)
	}
	fmt.Fprintf(w, "revision\t%d\t\n", s.Revision)
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated_at\t%s\t\n", s.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
