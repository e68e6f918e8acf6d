package core

import "time"

// SummaryChanged tells observers a site summary was rewritten, or removed
// when Deleted is set. It carries no totals: receivers re-read the summary.
type SummaryChanged struct {
	SiteID     string    `json:"site_id"`
	Revision   int64     `json:"revision"`
	Deleted    bool      `json:"deleted,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChangedFrom builds the event for a committed summary.
func ChangedFrom(s Summary) SummaryChanged {
	return SummaryChanged{SiteID: s.SiteID, Revision: s.Revision, OccurredAt: s.UpdatedAt}
}

// DeletedAt builds the event announcing a site removal.
func DeletedAt(siteID string, at time.Time) SummaryChanged {
	return SummaryChanged{SiteID: siteID, Deleted: true, OccurredAt: at}
}
