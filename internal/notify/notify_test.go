package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/core"
)

func TestHub_DeliversOnlyToSiteSubscribers(t *testing.T) {
	hub := NewHub(4)
	a, cancelA := hub.Subscribe("a")
	defer cancelA()
	b, cancelB := hub.Subscribe("b")
	defer cancelB()

	require.NoError(t, hub.Publish(context.Background(), core.SummaryChanged{SiteID: "a", Revision: 3}))

	select {
	case ev := <-a:
		assert.Equal(t, int64(3), ev.Revision)
	case <-time.After(time.Second):
		t.Fatal("subscriber of site a got nothing")
	}

	select {
	case ev := <-b:
		t.Fatalf("unexpected event for site b: %+v", ev)
	default:
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe("a")
	defer cancel()

	for i := 1; i <= 5; i++ {
		require.NoError(t, hub.Publish(context.Background(), core.SummaryChanged{SiteID: "a", Revision: int64(i)}))
	}

	ev := <-ch
	assert.Equal(t, int64(1), ev.Revision)
	select {
	case extra := <-ch:
		t.Fatalf("expected buffer of one, got extra %+v", extra)
	default:
	}
}

func TestHub_CancelAndCloseSite(t *testing.T) {
	hub := NewHub(1)
	ch1, cancel1 := hub.Subscribe("a")
	ch2, cancel2 := hub.Subscribe("a")
	assert.Equal(t, 2, hub.Subscribers("a"))

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("a"))

	hub.CloseSite("a")
	_, open = <-ch2
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("a"))

	// cancel after CloseSite must not panic on a closed channel
	cancel2()
}

func TestNotifier_PublisherErrorsAreNotFatal(t *testing.T) {
	var got []core.SummaryChanged
	failing := PublisherFunc(func(context.Context, core.SummaryChanged) error {
		return errors.New("broker down")
	})
	recording := PublisherFunc(func(_ context.Context, ev core.SummaryChanged) error {
		got = append(got, ev)
		return nil
	})

	n := NewNotifier(nil, failing, recording)
	ch, cancel := n.Subscribe("a")
	defer cancel()

	n.SummaryChanged(context.Background(),
		core.Summary{SiteID: "a", Revision: 1},
		core.Summary{SiteID: "b", Revision: 7},
	)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SiteID)
	assert.Equal(t, int64(7), got[1].Revision)

	ev := <-ch
	assert.Equal(t, int64(1), ev.Revision)
}

func TestNotifier_SiteDeletedReachesPublishers(t *testing.T) {
	var got []core.SummaryChanged
	recording := PublisherFunc(func(_ context.Context, ev core.SummaryChanged) error {
		got = append(got, ev)
		return nil
	})

	n := NewNotifier(nil, recording)
	ch, cancel := n.Subscribe("a")
	defer cancel()

	n.SiteDeleted(context.Background(), "a")

	_, open := <-ch
	assert.False(t, open)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SiteID)
	assert.True(t, got[0].Deleted)
	assert.False(t, got[0].OccurredAt.IsZero())
}
