package memory

import (
	"context"
	"sort"
	"sync"

	"sitefin/internal/core"
	ports "sitefin/internal/sheets"
)

// Row is one mirrored site.
type Row struct {
	Site    core.Site
	Summary core.Summary
}

// Store is an in-memory mirror used locally and in tests.
type Store struct {
	mu     sync.Mutex
	rows   map[string]Row
	writes int
}

var _ ports.SummaryWriter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[string]Row)}
}

// WriteSummary stores the row unless a newer revision is already mirrored.
func (s *Store) WriteSummary(_ context.Context, site core.Site, sum core.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rows[site.ID]; ok && cur.Summary.Revision >= sum.Revision {
		return nil
	}
	s.rows[site.ID] = Row{Site: site, Summary: sum}
	s.writes++
	return nil
}

func (s *Store) RemoveSite(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, siteID)
	return nil
}

func (s *Store) MirroredSiteIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns the mirrored row of a site.
func (s *Store) Get(siteID string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[siteID]
	return r, ok
}

// Rows returns every mirrored row ordered by site id.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site.ID < out[j].Site.ID })
	return out
}

// Writes counts accepted writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
