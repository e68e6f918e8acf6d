package memory

import (
	"context"
	"testing"

	"sitefin/internal/core"
)

func TestStore_KeepsNewestRevision(t *testing.T) {
	s := New()
	ctx := context.Background()
	site := core.Site{ID: "a", Name: "Alpha"}

	if err := s.WriteSummary(ctx, site, core.Summary{SiteID: "a", Revision: 3, Balance: core.Money{Cents: 300}}); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	// older and equal revisions are ignored
	_ = s.WriteSummary(ctx, site, core.Summary{SiteID: "a", Revision: 2, Balance: core.Money{Cents: 200}})
	_ = s.WriteSummary(ctx, site, core.Summary{SiteID: "a", Revision: 3, Balance: core.Money{Cents: 999}})

	row, ok := s.Get("a")
	if !ok || row.Summary.Balance.Cents != 300 {
		t.Fatalf("Get(a) = %+v, %v", row, ok)
	}
	if s.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", s.Writes())
	}
}

func TestStore_RowsAndRemove(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_ = s.WriteSummary(ctx, core.Site{ID: id}, core.Summary{SiteID: id, Revision: 1})
	}

	rows := s.Rows()
	if len(rows) != 3 || rows[0].Site.ID != "a" || rows[2].Site.ID != "c" {
		t.Fatalf("Rows() = %+v", rows)
	}

	_ = s.RemoveSite(ctx, "b")
	if _, ok := s.Get("b"); ok {
		t.Error("site b should be removed")
	}

	ids, err := s.MirroredSiteIDs(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("MirroredSiteIDs() = %v, %v", ids, err)
	}
}
