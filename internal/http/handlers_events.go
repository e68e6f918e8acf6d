package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sitefin/internal/core"
	applog "sitefin/internal/log"
)

// handleEvents streams summary changes of one site as server-sent events.
// The first event carries the current revision so a client can tell whether
// it missed anything. Every heartbeat also re-reads the committed revision,
// which picks up writes made by other processes on the same database. The
// stream ends when the client leaves or the site is deleted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := chi.URLParam(r, "siteID")

	events, cancel, err := s.ledger.Subscribe(ctx, siteID)
	if err != nil {
		respondError(w, r, applog.OpSubscribe, err)
		return
	}
	defer cancel()

	current, err := s.ledger.GetSummary(ctx, siteID)
	if err != nil {
		respondError(w, r, applog.OpSubscribe, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, id int64, data any) error {
		body, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, id, body); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("summary", current.Revision, toSummaryResponse(current)); err != nil {
		return
	}
	lastRev := current.Revision
	siteDeleted := func() {
		_ = send("site_deleted", 0, map[string]string{"site_id": siteID})
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				siteDeleted()
				return
			}
			if err := send("summary_changed", ev.Revision, toEventResponse(ev)); err != nil {
				return
			}
			lastRev = max(lastRev, ev.Revision)
		case <-heartbeat.C:
			sum, err := s.ledger.GetSummary(ctx, siteID)
			if errors.Is(err, core.ErrSiteNotFound) {
				siteDeleted()
				return
			}
			if err == nil && sum.Revision > lastRev {
				if err := send("summary_changed", sum.Revision, toEventResponse(core.ChangedFrom(sum))); err != nil {
					return
				}
				lastRev = sum.Revision
				continue
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
