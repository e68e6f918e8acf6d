package services

import (
	"sort"
	"sync"
)

// SiteLocker hands out per-site read/write locks. Multi-site writers always
// acquire in ascending site id order so two transfers touching the same pair
// of sites in opposite directions cannot deadlock.
type SiteLocker struct {
	mu    sync.Mutex
	locks map[string]*siteLock
}

type siteLock struct {
	rw   sync.RWMutex
	refs int
}

func NewSiteLocker() *SiteLocker {
	return &SiteLocker{locks: make(map[string]*siteLock)}
}

// Lock write-locks every given site and returns the matching unlock func.
func (l *SiteLocker) Lock(siteIDs ...string) (unlock func()) {
	ids := lockOrder(siteIDs)
	held := make([]*siteLock, 0, len(ids))
	for _, id := range ids {
		sl := l.acquire(id)
		sl.rw.Lock()
		held = append(held, sl)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].rw.Unlock()
			l.release(ids[i])
		}
	}
}

// RLock read-locks one site.
func (l *SiteLocker) RLock(siteID string) (unlock func()) {
	sl := l.acquire(siteID)
	sl.rw.RLock()
	return func() {
		sl.rw.RUnlock()
		l.release(siteID)
	}
}

func (l *SiteLocker) acquire(id string) *siteLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &siteLock{}
		l.locks[id] = sl
	}
	sl.refs++
	return sl
}

func (l *SiteLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[id]
	if !ok {
		return
	}
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many sites currently have a lock entry.
func (l *SiteLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// lockOrder returns the distinct, non-empty ids in ascending order.
func lockOrder(siteIDs []string) []string {
	seen := make(map[string]struct{}, len(siteIDs))
	ids := make([]string, 0, len(siteIDs))
	for _, id := range siteIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
