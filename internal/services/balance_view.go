package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"sitefin/internal/core"
	"sitefin/internal/storage"
)

// SummaryCache holds committed summaries keyed by site id. Put must keep the
// entry with the highest revision.
type SummaryCache interface {
	Get(ctx context.Context, siteID string) (core.Summary, bool)
	Put(ctx context.Context, s core.Summary)
	Delete(ctx context.Context, siteID string)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (core.Summary, bool) { return core.Summary{}, false }
func (noopCache) Put(context.Context, core.Summary) {}
func (noopCache) Delete(context.Context, string) {}

// BalanceView serves getSummary. It read-locks the site so a reader never
// observes a summary older than a write that already returned, then tries the
// cache and finally the database. Other processes (sitectl, a second server)
// write the same database without touching this cache, so a hit is only
// served when its revision matches the committed one. Concurrent misses for
// one site share a single query.
type BalanceView struct {
	store storage.Store
	locks *SiteLocker
	cache SummaryCache
	group singleflight.Group
}

func NewBalanceView(store storage.Store, locks *SiteLocker, cache SummaryCache) *BalanceView {
	if cache == nil {
		cache = noopCache{}
	}
	return &BalanceView{store: store, locks: locks, cache: cache}
}

// Get returns the latest committed summary of the site.
func (v *BalanceView) Get(ctx context.Context, siteID string) (core.Summary, error) {
	unlock := v.locks.RLock(siteID)
	defer unlock()

	if s, ok := v.cache.Get(ctx, siteID); ok {
		rev, err := v.store.Reader().SummaryRevision(ctx, siteID)
		if errors.Is(err, core.ErrSiteNotFound) {
			v.cache.Delete(ctx, siteID)
			return core.Summary{}, fmt.Errorf("get summary: %w", err)
		}
		if err != nil {
			return core.Summary{}, fmt.Errorf("get summary: %w", err)
		}
		if rev == s.Revision {
			return s, nil
		}
	}

	res, err, _ := v.group.Do(siteID, func() (any, error) {
		s, err := v.store.Reader().GetSummary(ctx, siteID)
		if err != nil {
			return core.Summary{}, err
		}
		v.cache.Put(ctx, s)
		return s, nil
	})
	if err != nil {
		return core.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return res.(core.Summary), nil
}

// remember stores freshly committed summaries. Callers hold the write locks.
func (v *BalanceView) remember(ctx context.Context, summaries ...core.Summary) {
	for _, s := range summaries {
		v.cache.Put(ctx, s)
	}
}

func (v *BalanceView) forget(ctx context.Context, siteID string) {
	v.cache.Delete(ctx, siteID)
}
