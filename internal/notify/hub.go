package notify

import (
	"context"
	"log/slog"
	"sync"

	"sitefin/internal/core"
)

const defaultBuffer = 16

// Hub fans summary changes out to in-process subscribers. Each subscriber has
// a bounded buffer; when it is full the event is dropped for that subscriber
// only. Events carry no totals, so a dropped one costs at most a stale view
// until the next change.
type Hub struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*subscription]struct{}
}

type subscription struct {
	siteID string
	ch     chan core.SummaryChanged
	once   sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers interest in one site. The returned channel is closed
// by cancel or when the site is deleted.
func (h *Hub) Subscribe(siteID string) (<-chan core.SummaryChanged, func()) {
	sub := &subscription{siteID: siteID, ch: make(chan core.SummaryChanged, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[siteID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[siteID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() { h.remove(sub) }
}

// Publish implements Publisher. It never blocks.
func (h *Hub) Publish(ctx context.Context, ev core.SummaryChanged) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[ev.SiteID] {
		select {
		case sub.ch <- ev:
		default:
			slog.DebugContext(ctx, "Dropped summary event for slow subscriber",
				"component", "notify", "site_id", ev.SiteID, "revision", ev.Revision)
		}
	}
	return nil
}

// CloseSite ends every subscription of a deleted site.
func (h *Hub) CloseSite(siteID string) {
	h.mu.Lock()
	set := h.subs[siteID]
	delete(h.subs, siteID)
	h.mu.Unlock()

	for sub := range set {
		sub.close()
	}
}

// Subscribers returns the number of live subscriptions for a site.
func (h *Hub) Subscribers(siteID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[siteID])
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.siteID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.siteID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}
