package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitefin/internal/amqp"
	"sitefin/internal/core"
	"sitefin/internal/sheets"
)

// SummarySource reads committed sites and summaries.
type SummarySource interface {
	GetSite(ctx context.Context, id string) (core.Site, error)
	GetSummary(ctx context.Context, siteID string) (core.Summary, error)
	ListSites(ctx context.Context) ([]core.Site, error)
}

// MirrorWorker copies site summaries to an external sheet. Change messages
// only name the site; the worker re-reads the summary so a late or
// duplicated message never writes stale totals.
type MirrorWorker struct {
	source SummarySource
	sheets sheets.SummaryWriter
}

func NewMirrorWorker(source SummarySource, writer sheets.SummaryWriter) *MirrorWorker {
	return &MirrorWorker{source: source, sheets: writer}
}

// HandleSummaryChanged processes a single summary changed message from AMQP
func (w *MirrorWorker) HandleSummaryChanged(ctx context.Context, msg *amqp.SummaryChangedMessage) error {
	slog.DebugContext(ctx, "Processing summary changed message",
		"site_id", msg.SiteID,
		"revision", msg.Revision)

	return w.mirrorSite(ctx, msg.SiteID)
}

func (w *MirrorWorker) mirrorSite(ctx context.Context, siteID string) error {
	site, err := w.source.GetSite(ctx, siteID)
	if errors.Is(err, core.ErrSiteNotFound) {
		if err := w.sheets.RemoveSite(ctx, siteID); err != nil {
			return fmt.Errorf("remove site from mirror: %w", err)
		}
		slog.InfoContext(ctx, "Removed deleted site from mirror", "site_id", siteID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get site: %w", err)
	}

	summary, err := w.source.GetSummary(ctx, siteID)
	if err != nil {
		return fmt.Errorf("get summary: %w", err)
	}

	if err := w.sheets.WriteSummary(ctx, site, summary); err != nil {
		return fmt.Errorf("write summary to mirror: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored site summary",
		"site_id", siteID,
		"revision", summary.Revision,
		"balance_cents", summary.Balance.Cents)
	return nil
}

// ResyncAll mirrors every site and removes rows of sites that no longer
// exist. It runs at startup and periodically to recover from messages lost
// while the worker was down.
func (w *MirrorWorker) ResyncAll(ctx context.Context) error {
	sites, err := w.source.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}

	successCount := 0
	errorCount := 0
	live := make(map[string]struct{}, len(sites))
	for _, site := range sites {
		live[site.ID] = struct{}{}
		if err := w.mirrorSite(ctx, site.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror site during resync",
				"site_id", site.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	removed, err := w.removeOrphans(ctx, live)

	slog.InfoContext(ctx, "Mirror resync completed",
		"total", len(sites),
		"synced", successCount,
		"removed", removed,
		"errors", errorCount)

	if errorCount > 0 {
		return errors.Join(fmt.Errorf("resync: %d of %d sites failed", errorCount, len(sites)), err)
	}
	return err
}

// removeOrphans drops mirrored rows whose site is not in live.
func (w *MirrorWorker) removeOrphans(ctx context.Context, live map[string]struct{}) (int, error) {
	mirrored, err := w.sheets.MirroredSiteIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirrored sites: %w", err)
	}

	removed := 0
	var errs []error
	for _, id := range mirrored {
		if _, ok := live[id]; ok {
			continue
		}
		if err := w.sheets.RemoveSite(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("remove site %s: %w", id, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
