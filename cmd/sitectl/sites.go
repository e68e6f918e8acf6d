package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage construction sites",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every site",
	Args:  cobra.NoArgs,
	RunE:  runSitesList,
}

var sitesCreateCmd = &cobra.Command{
	Use:   "create <name> <supervisor-id>",
	Short: "Create a site with a zeroed summary",
	Args:  cobra.ExactArgs(2),
	RunE:  runSitesCreate,
}

var flagReopen bool

var sitesCompleteCmd = &cobra.Command{
	Use:   "complete <site-id>",
	Short: "Mark a site completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesComplete,
}

var sitesDeleteCmd = &cobra.Command{
	Use:   "delete <site-id>",
	Short: "Delete a site and its records",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesDelete,
}

func init() {
	sitesCompleteCmd.Flags().BoolVar(&flagReopen, "reopen", false, "Clear the completed flag instead")
	sitesCmd.AddCommand(sitesListCmd, sitesCreateCmd, sitesCompleteCmd, sitesDeleteCmd)
	rootCmd.AddCommand(sitesCmd)
}

func runSitesList(cmd *cobra.Command, _ []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sites, err := ledger.ListSites(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUPERVISOR\tCOMPLETED\tBALANCE\tREV")
	for _, s := range sites {
		sum, err := ledger.GetSummary(cmd.Context(), s.ID)
		if err != nil {
			return fmt.Errorf("summary for %s: %w", s.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n",
			s.ID, s.Name, s.SupervisorID, s.Completed, sum.Balance, sum.Revision)
	}
	return w.Flush()
}

func runSitesCreate(cmd *cobra.Command, args []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	site, err := ledger.CreateSite(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(site.ID)
	return nil
}

func runSitesComplete(cmd *cobra.Command, args []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	site, err := ledger.SetSiteCompleted(cmd.Context(), args[0], !flagReopen)
	if err != nil {
		return err
	}
	progress("  Site %s completed=%t\n", site.ID, site.Completed)
	return nil
}

func runSitesDelete(cmd *cobra.Command, args []string) error {
	ledger, cleanup, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := ledger.DeleteSite(cmd.Context(), args[0]); err != nil {
		return err
	}
	progress("  Site %s deleted\n", args[0])
	return nil
}
