package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/amqp"
	"sitefin/internal/core"
	"sitefin/internal/sheets/memory"
)

type fakeSource struct {
	sites     map[string]core.Site
	summaries map[string]core.Summary
	failSite  string
}

func (f *fakeSource) GetSite(_ context.Context, id string) (core.Site, error) {
	s, ok := f.sites[id]
	if !ok {
		return core.Site{}, core.ErrSiteNotFound
	}
	return s, nil
}

func (f *fakeSource) GetSummary(_ context.Context, id string) (core.Summary, error) {
	if id == f.failSite {
		return core.Summary{}, errors.New("database locked")
	}
	s, ok := f.summaries[id]
	if !ok {
		return core.Summary{}, core.ErrSiteNotFound
	}
	return s, nil
}

func (f *fakeSource) ListSites(context.Context) ([]core.Site, error) {
	out := make([]core.Site, 0, len(f.sites))
	for _, s := range f.sites {
		out = append(out, s)
	}
	return out, nil
}

func newSource() *fakeSource {
	return &fakeSource{
		sites: map[string]core.Site{
			"a": {ID: "a", Name: "Alpha", SupervisorID: "sup-a"},
			"b": {ID: "b", Name: "Beta", SupervisorID: "sup-b"},
		},
		summaries: map[string]core.Summary{
			"a": {SiteID: "a", Revision: 5, Balance: core.Money{Cents: 750}},
			"b": {SiteID: "b", Revision: 2, Balance: core.Money{Cents: 100}},
		},
	}
}

func TestMirrorWorker_WritesCurrentSummary(t *testing.T) {
	src := newSource()
	mirror := memory.New()
	w := NewMirrorWorker(src, mirror)

	// a stale message still mirrors the latest committed summary
	err := w.HandleSummaryChanged(context.Background(), &amqp.SummaryChangedMessage{SiteID: "a", Revision: 3})
	require.NoError(t, err)

	row, ok := mirror.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(5), row.Summary.Revision)
	assert.Equal(t, "Alpha", row.Site.Name)

	// duplicates do not rewrite
	require.NoError(t, w.HandleSummaryChanged(context.Background(), &amqp.SummaryChangedMessage{SiteID: "a", Revision: 5}))
	assert.Equal(t, 1, mirror.Writes())
}

func TestMirrorWorker_RemovesDeletedSite(t *testing.T) {
	src := newSource()
	mirror := memory.New()
	w := NewMirrorWorker(src, mirror)
	require.NoError(t, w.ResyncAll(context.Background()))
	require.Len(t, mirror.Rows(), 2)

	delete(src.sites, "b")
	require.NoError(t, w.HandleSummaryChanged(context.Background(), &amqp.SummaryChangedMessage{SiteID: "b", Revision: 3}))

	_, ok := mirror.Get("b")
	assert.False(t, ok)
}

func TestMirrorWorker_ResyncReportsFailures(t *testing.T) {
	src := newSource()
	src.failSite = "b"
	mirror := memory.New()
	w := NewMirrorWorker(src, mirror)

	err := w.ResyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	_, ok := mirror.Get("a")
	assert.True(t, ok)

	err = w.HandleSummaryChanged(context.Background(), &amqp.SummaryChangedMessage{SiteID: "b", Revision: 1})
	assert.Error(t, err)
}

func TestMirrorWorker_ResyncRemovesOrphanRows(t *testing.T) {
	src := newSource()
	mirror := memory.New()
	w := NewMirrorWorker(src, mirror)
	require.NoError(t, w.ResyncAll(context.Background()))

	// deleted without any message reaching the worker
	delete(src.sites, "b")
	delete(src.summaries, "b")

	require.NoError(t, w.ResyncAll(context.Background()))
	_, ok := mirror.Get("b")
	assert.False(t, ok)
	_, ok = mirror.Get("a")
	assert.True(t, ok)
}
