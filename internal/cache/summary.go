package cache

import (
	"context"
	"time"

	"sitefin/internal/core"
)

// SummaryLRU is an in-process summary cache. Writes never replace a newer
// revision with an older one.
type SummaryLRU struct {
	lru *LRUCache[core.Summary]
}

func NewSummaryLRU(maxSize int, ttl time.Duration) *SummaryLRU {
	return &SummaryLRU{lru: NewLRUCache[core.Summary](maxSize, ttl)}
}

func (c *SummaryLRU) Get(_ context.Context, siteID string) (core.Summary, bool) {
	return c.lru.Get(siteID)
}

func (c *SummaryLRU) Put(_ context.Context, s core.Summary) {
	c.lru.SetIf(s.SiteID, s, func(current core.Summary) bool {
		return current.Revision >= s.Revision
	})
}

func (c *SummaryLRU) Delete(_ context.Context, siteID string) {
	c.lru.Delete(siteID)
}

// CleanExpired implements Cleaner
func (c *SummaryLRU) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *SummaryLRU) Size() int {
	return c.lru.Size()
}
