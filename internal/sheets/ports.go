package sheets

import (
	"context"

	"sitefin/internal/core"
)

// Ports for outbound adapters.
type (
	// SummaryWriter mirrors site summaries to an external sheet. Writes
	// carrying a revision older than the mirrored one are ignored.
	SummaryWriter interface {
		WriteSummary(ctx context.Context, site core.Site, s core.Summary) error
		// RemoveSite drops the mirrored row of a deleted site.
		RemoveSite(ctx context.Context, siteID string) error
		// MirroredSiteIDs lists the sites currently present in the mirror.
		MirroredSiteIDs(ctx context.Context) ([]string, error)
	}
)

// Header is the column layout of the mirror sheet.
var Header = []string{
	"Site ID", "Site", "Supervisor",
	"Funds received", "Funds from supervisor", "Expenses", "Advances", "Invoices",
	"Advance paid to supervisor", "Balance", "Revision", "Updated at",
}

// RevisionColumn is the zero-based index of the revision column.
const RevisionColumn = 10

// Row renders one mirror row. Amounts are decimal strings in currency units.
func Row(site core.Site, s core.Summary) []any {
	return []any{
		site.ID, site.Name, site.SupervisorID,
		s.FundsReceived.String(), s.FundsReceivedFromSupervisor.String(),
		s.TotalExpenses.String(), s.TotalAdvances.String(), s.TotalInvoices.String(),
		s.AdvancePaidToSupervisor.String(), s.Balance.String(),
		s.Revision, s.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}
