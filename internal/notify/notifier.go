package notify

import (
	"context"
	"log/slog"
	"time"

	"sitefin/internal/core"
)

// Publisher delivers a summary change to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev core.SummaryChanged) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev core.SummaryChanged) error

func (f PublisherFunc) Publish(ctx context.Context, ev core.SummaryChanged) error {
	return f(ctx, ev)
}

// Notifier is the change notifier: after a summary write commits, every
// publisher gets the event. Delivery is advisory, so publish failures are
// logged and never reach the writer.
type Notifier struct {
	hub        *Hub
	publishers []Publisher
}

func NewNotifier(hub *Hub, publishers ...Publisher) *Notifier {
	if hub == nil {
		hub = NewHub(defaultBuffer)
	}
	return &Notifier{hub: hub, publishers: publishers}
}

// Hub returns the in-process subscription hub.
func (n *Notifier) Hub() *Hub {
	return n.hub
}

// SummaryChanged publishes one event per committed summary.
func (n *Notifier) SummaryChanged(ctx context.Context, summaries ...core.Summary) {
	for _, s := range summaries {
		ev := core.ChangedFrom(s)
		_ = n.hub.Publish(ctx, ev)
		n.publish(ctx, ev)
	}
}

// Subscribe returns a stream of change events for the site.
func (n *Notifier) Subscribe(siteID string) (<-chan core.SummaryChanged, func()) {
	return n.hub.Subscribe(siteID)
}

// SiteDeleted closes the local subscriptions of a removed site and tells the
// external publishers so mirrors drop it.
func (n *Notifier) SiteDeleted(ctx context.Context, siteID string) {
	n.hub.CloseSite(siteID)
	n.publish(ctx, core.DeletedAt(siteID, time.Now().UTC()))
}

func (n *Notifier) publish(ctx context.Context, ev core.SummaryChanged) {
	for _, p := range n.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			slog.WarnContext(ctx, "Summary event publish failed",
				"component", "notify", "site_id", ev.SiteID, "revision", ev.Revision, "error", err)
		}
	}
}
