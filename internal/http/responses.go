package http

import (
	"time"

	"sitefin/internal/core"
	"sitefin/internal/services"
)

// Amounts leave the API as two-decimal strings so no client parses money as
// a float.

type siteResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SupervisorID string    `json:"supervisor_id"`
	Completed    bool      `json:"completed"`
	CreatedAt    time.Time `json:"created_at"`
}

type summaryResponse struct {
	SiteID                      string    `json:"site_id"`
	FundsReceived               string    `json:"funds_received"`
	FundsReceivedFromSupervisor string    `json:"funds_received_from_supervisor"`
	TotalExpenses               string    `json:"total_expenses"`
	TotalAdvances               string    `json:"total_advances"`
	TotalInvoices               string    `json:"total_invoices"`
	AdvancePaidToSupervisor     string    `json:"advance_paid_to_supervisor"`
	Balance                     string    `json:"balance"`
	Revision                    int64     `json:"revision"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID        string            `json:"id"`
	SiteID    string            `json:"site_id"`
	Kind      string            `json:"kind"`
	Amount    string            `json:"amount"`
	Status    string            `json:"status"`
	CreatedBy string            `json:"created_by,omitempty"`
	Date      string            `json:"date"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type transferResponse struct {
	ID                   string    `json:"id"`
	PayerSupervisorID    string    `json:"payer_supervisor_id"`
	ReceiverSupervisorID string    `json:"receiver_supervisor_id"`
	PayerSiteID          string    `json:"payer_site_id"`
	ReceiverSiteID       string    `json:"receiver_site_id"`
	Amount               string    `json:"amount"`
	TransferKind         string    `json:"transfer_kind"`
	Date                 string    `json:"date"`
	CreatedBy            string    `json:"created_by,omitempty"`
	Note                 string    `json:"note,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

type repairResponse struct {
	Sites      int   `json:"sites"`
	Recomputed int   `json:"recomputed"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

type eventResponse struct {
	SiteID     string    `json:"site_id"`
	Revision   int64     `json:"revision"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toSiteResponse(s core.Site) siteResponse {
	return siteResponse{
		ID:           s.ID,
		Name:         s.Name,
		SupervisorID: s.SupervisorID,
		Completed:    s.Completed,
		CreatedAt:    s.CreatedAt,
	}
}

func toSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse{
		SiteID:                      s.SiteID,
		FundsReceived:               s.FundsReceived.String(),
		FundsReceivedFromSupervisor: s.FundsReceivedFromSupervisor.String(),
		TotalExpenses:               s.TotalExpenses.String(),
		TotalAdvances:               s.TotalAdvances.String(),
		TotalInvoices:               s.TotalInvoices.String(),
		AdvancePaidToSupervisor:     s.AdvancePaidToSupervisor.String(),
		Balance:                     s.Balance.String(),
		Revision:                    s.Revision,
		UpdatedAt:                   s.UpdatedAt,
	}
}

func toSummaryResponses(in []core.Summary) []summaryResponse {
	out := make([]summaryResponse, 0, len(in))
	for _, s := range in {
		out = append(out, toSummaryResponse(s))
	}
	return out
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		SiteID:    t.SiteID,
		Kind:      t.Kind.String(),
		Amount:    t.Amount.String(),
		Status:    t.Status.String(),
		CreatedBy: t.CreatedBy,
		Date:      t.Date.Format(dateLayout),
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
	}
}

func toTransferResponse(t core.SupervisorTransfer) transferResponse {
	return transferResponse{
		ID:                   t.ID,
		PayerSupervisorID:    t.PayerSupervisorID,
		ReceiverSupervisorID: t.ReceiverSupervisorID,
		PayerSiteID:          t.PayerSiteID,
		ReceiverSiteID:       t.ReceiverSiteID,
		Amount:               t.Amount.String(),
		TransferKind:         t.Kind.String(),
		Date:                 t.Date.Format(dateLayout),
		CreatedBy:            t.CreatedBy,
		Note:                 t.Note,
		CreatedAt:            t.CreatedAt,
	}
}

func toRepairResponse(r services.RepairReport) repairResponse {
	return repairResponse{
		Sites:      r.Sites,
		Recomputed: r.Recomputed,
		Failed:     r.Failed,
		DurationMs: r.Duration.Milliseconds(),
	}
}

func toEventResponse(ev core.SummaryChanged) eventResponse {
	return eventResponse{SiteID: ev.SiteID, Revision: ev.Revision, OccurredAt: ev.OccurredAt}
}
