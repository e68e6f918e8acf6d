package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sitefin/internal/core"
)

// RepairReport describes one RecomputeAll run.
type RepairReport struct {
	Sites      int
	Recomputed int
	Failed     int
	Duration   time.Duration
}

// RecomputeAll rebuilds every site summary with bounded parallelism. A failing
// site does not stop the others; the returned error joins every failure.
func (s *LedgerService) RecomputeAll(ctx context.Context) (RepairReport, error) {
	start := time.Now()
	ids, err := s.store.Reader().ListSiteIDs(ctx)
	if err != nil {
		return RepairReport{}, fmt.Errorf("list sites: %w", err)
	}

	var (
		mu     sync.Mutex
		errs   []error
		report = RepairReport{Sites: len(ids)}
	)

	var g errgroup.Group
	g.SetLimit(s.config.RepairConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("site %s: %w", id, err))
				report.Failed++
				mu.Unlock()
				return nil
			}

			_, err := s.RecomputeSite(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, core.ErrSiteNotFound):
				// deleted since the listing
			case err != nil:
				errs = append(errs, fmt.Errorf("site %s: %w", id, err))
				report.Failed++
			default:
				report.Recomputed++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	slog.InfoContext(ctx, "Recompute all finished", "component", "ledger",
		"sites", report.Sites, "recomputed", report.Recomputed, "failed", report.Failed,
		"duration", report.Duration)

	return report, errors.Join(errs...)
}
