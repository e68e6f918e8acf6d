package services

import (
	"context"
	"errors"
	"fmt"

	"sitefin/internal/core"
	"sitefin/internal/storage"
)

// TransferHandler turns one supervisor transfer into two postings: the payer
// site's advance_paid_to_supervisor and the receiver site's
// funds_received_from_supervisor. Both run inside the caller's transaction.
type TransferHandler struct {
	agg *Aggregator
}

func NewTransferHandler(agg *Aggregator) *TransferHandler {
	return &TransferHandler{agg: agg}
}

// Post persists the transfer and recomputes both sites. It returns the
// stored transfer with supervisor ids filled in, and the summaries payer
// first, receiver second.
func (h *TransferHandler) Post(ctx context.Context, tx storage.Tx, t core.SupervisorTransfer) (core.SupervisorTransfer, []core.Summary, error) {
	var zero core.SupervisorTransfer
	payer, err := lookupSite(ctx, tx, "payer_site_id", t.PayerSiteID)
	if err != nil {
		return zero, nil, err
	}
	receiver, err := lookupSite(ctx, tx, "receiver_site_id", t.ReceiverSiteID)
	if err != nil {
		return zero, nil, err
	}

	if t.PayerSupervisorID == "" {
		t.PayerSupervisorID = payer.SupervisorID
	} else if t.PayerSupervisorID != payer.SupervisorID {
		return zero, nil, &core.ValidationError{Field: "payer_supervisor_id", Err: core.ErrSupervisorMismatch}
	}
	if t.ReceiverSupervisorID == "" {
		t.ReceiverSupervisorID = receiver.SupervisorID
	} else if t.ReceiverSupervisorID != receiver.SupervisorID {
		return zero, nil, &core.ValidationError{Field: "receiver_supervisor_id", Err: core.ErrSupervisorMismatch}
	}

	if err := tx.CreateTransfer(ctx, t); err != nil {
		return zero, nil, fmt.Errorf("persist transfer: %w", err)
	}

	summaries, err := h.recomputeBoth(ctx, tx, t)
	if err != nil {
		return zero, nil, err
	}
	return t, summaries, nil
}

// Delete removes the transfer and recomputes both sites from scratch.
func (h *TransferHandler) Delete(ctx context.Context, tx storage.Tx, id string) (core.SupervisorTransfer, []core.Summary, error) {
	t, err := tx.GetTransfer(ctx, id)
	if err != nil {
		return core.SupervisorTransfer{}, nil, err
	}
	if err := tx.SoftDeleteTransfer(ctx, id, h.agg.now()); err != nil {
		return core.SupervisorTransfer{}, nil, err
	}
	summaries, err := h.recomputeBoth(ctx, tx, t)
	if err != nil {
		return core.SupervisorTransfer{}, nil, err
	}
	return t, summaries, nil
}

func (h *TransferHandler) recomputeBoth(ctx context.Context, tx storage.Tx, t core.SupervisorTransfer) ([]core.Summary, error) {
	payerSummary, err := h.agg.Recompute(ctx, tx, t.PayerSiteID)
	if err != nil {
		return nil, fmt.Errorf("payer posting: %w", err)
	}
	receiverSummary, err := h.agg.Recompute(ctx, tx, t.ReceiverSiteID)
	if err != nil {
		return nil, fmt.Errorf("receiver posting: %w", err)
	}
	return []core.Summary{payerSummary, receiverSummary}, nil
}

// lookupSite maps a missing site to a validation error on field.
func lookupSite(ctx context.Context, tx storage.Tx, field, id string) (core.Site, error) {
	site, err := tx.GetSite(ctx, id)
	if errors.Is(err, core.ErrSiteNotFound) {
		return core.Site{}, &core.ValidationError{Field: field, Err: core.ErrSiteNotFound}
	}
	if err != nil {
		return core.Site{}, err
	}
	return site, nil
}
