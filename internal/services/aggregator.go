package services

import (
	"context"
	"fmt"
	"time"

	"sitefin/internal/core"
	"sitefin/internal/storage"
)

// Aggregator is the only writer of site summaries. It always derives a
// summary from the full active record set, never from deltas, so running it
// again with no intervening mutation yields the same totals.
type Aggregator struct {
	policy core.CountPolicy
	now    func() time.Time
}

func NewAggregator(policy core.CountPolicy, now func() time.Time) *Aggregator {
	if !policy.IsValid() {
		policy = core.CountAll
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{policy: policy, now: now}
}

// Policy returns the status counting policy in effect.
func (a *Aggregator) Policy() core.CountPolicy {
	return a.policy
}

// Init writes the zeroed summary of a freshly created site.
func (a *Aggregator) Init(ctx context.Context, tx storage.Tx, siteID string) (core.Summary, error) {
	at := a.now()
	if err := tx.InsertZeroSummary(ctx, siteID, at); err != nil {
		return core.Summary{}, fmt.Errorf("init summary for site %s: %w", siteID, err)
	}
	s := core.Totals{}.Summary(siteID)
	s.UpdatedAt = at
	return s, nil
}

// Recompute sums every active transaction and transfer posting of the site
// inside tx and upserts the result. The caller owns the site's write lock.
func (a *Aggregator) Recompute(ctx context.Context, tx storage.Tx, siteID string) (core.Summary, error) {
	if _, err := tx.GetSite(ctx, siteID); err != nil {
		return core.Summary{}, fmt.Errorf("recompute site %s: %w", siteID, err)
	}

	totals, err := tx.SumActiveTransactions(ctx, siteID, a.policy.CountedStatuses())
	if err != nil {
		return core.Summary{}, fmt.Errorf("recompute site %s: %w", siteID, err)
	}

	out, in, err := tx.SumActiveTransfers(ctx, siteID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("recompute site %s: %w", siteID, err)
	}
	totals.AdvancePaidToSupervisor = out
	totals.FundsReceivedFromSupervisor = in
	if err := totals.Validate(); err != nil {
		return core.Summary{}, fmt.Errorf("recompute site %s: %w", siteID, err)
	}

	s := totals.Summary(siteID)
	s.UpdatedAt = a.now()

	written, err := tx.UpsertSummary(ctx, s)
	if err != nil {
		return core.Summary{}, fmt.Errorf("recompute site %s: %w", siteID, err)
	}
	return written, nil
}
