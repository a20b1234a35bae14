package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"calboard/internal/cache"
	"calboard/internal/gateway"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = NewCaller("me@example.com", "me@example.com")
	stranger = NewCaller("you@example.com", "me@example.com")
	today    = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu        sync.Mutex
	deletes   []Ack
	update    Ack
	updateErr error
	deleteErr error
	syncErr   error
	calls     []gateway.Action
	fallbacks []gateway.Request
	payloads  []gateway.EventPayload
}

type Ack = gateway.Ack

func (g *fakeGateway) record(a gateway.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, a)
}

func (g *fakeGateway) SyncNow(_ context.Context, _ string) (Ack, error) {
	g.record(gateway.SyncNow)
	if g.syncErr != nil {
		return Ack{}, g.syncErr
	}
	return Ack{OK: true}, nil
}

func (g *fakeGateway) UpdateEvent(_ context.Context, _, _ string, payload gateway.EventPayload) (Ack, error) {
	g.record(gateway.UpdateEvent)
	g.mu.Lock()
	g.payloads = append(g.payloads, payload)
	g.mu.Unlock()
	return g.update, g.updateErr
}

func (g *fakeGateway) DeleteEvent(_ context.Context, _, _ string) (Ack, error) {
	g.record(gateway.DeleteEvent)
	if g.deleteErr != nil {
		return Ack{}, g.deleteErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ack := g.deletes[0]
	if len(g.deletes) > 1 {
		g.deletes = g.deletes[1:]
	}
	return ack, nil
}

func (g *fakeGateway) Fallback(_ context.Context, req gateway.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallbacks = append(g.fallbacks, req)
}

func (g *fakeGateway) count(a gateway.Action) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == a {
			n++
		}
	}
	return n
}

type countingStore struct {
	cache.Store
	mu      sync.Mutex
	lists   int
	listErr error
	delErr  error
}

func (s *countingStore) List(ctx context.Context) ([]cache.Item, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.List(ctx)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	if s.delErr != nil {
		return s.delErr
	}
	return s.Store.Delete(ctx, id)
}

type deferred struct {
	delays []time.Duration
	funcs  []func()
}

func (d *deferred) after(delay time.Duration, f func()) {
	d.delays = append(d.delays, delay)
	d.funcs = append(d.funcs, f)
}

func setup(t *testing.T, gw *fakeGateway) (*Controller, *countingStore, *deferred) {
	t.Helper()
	store := &countingStore{Store: cache.NewFileStore(filepath.Join(t.TempDir(), "cache.json"), time.UTC)}
	ctx := context.Background()
	for _, item := range []cache.Item{
		{ID: "1", ExternalEventID: "ev-1", Title: "Dentist", StartAt: "2024-01-10T18:00:00Z"},
		{ID: "2", ExternalEventID: "ev-2", Title: "Flight", StartAt: "2024-01-12T07:00:00Z"},
		{ID: "3", ExternalEventID: "ev-3", Title: "Past", StartAt: "2024-01-09T07:00:00Z"},
		{ID: "4", ExternalEventID: "ev-4", Title: "Far", StartAt: "2024-03-01T07:00:00Z"},
		{ID: "5", ExternalEventID: "ev-5", Title: "Broken", StartAt: "tbd"},
	} {
		require.NoError(t, store.Upsert(ctx, item))
	}
	d := &deferred{}
	c := New(store, gw,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return today }),
		WithAfterFunc(d.after),
	)
	return c, store, d
}

func ids(items []cache.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestRefreshRange(t *testing.T) {
	c, _, _ := setup(t, &fakeGateway{})

	got := c.RefreshRange(context.Background(), 7)

	assert.Equal(t, []string{"1", "2"}, ids(got))
	assert.Equal(t, got, c.Items())
	assert.Equal(t, []string{"1"}, ids(c.RefreshRange(context.Background(), 0)))
}

func TestRefreshRangeFailsSoft(t *testing.T) {
	c, store, _ := setup(t, &fakeGateway{})
	store.listErr = errors.New("store offline")

	got := c.RefreshRange(context.Background(), 7)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRequestDeleteDenied(t *testing.T) {
	gw := &fakeGateway{}
	c, store, _ := setup(t, gw)
	c.RefreshRange(context.Background(), 7)
	listsBefore := store.lists

	out := c.RequestDelete(context.Background(), stranger, "ev-1", "tok")

	assert.Equal(t, Denied, out.Kind)
	assert.Empty(t, gw.calls)
	assert.Equal(t, listsBefore, store.lists)
	assert.Equal(t, []string{"1", "2"}, ids(c.Items()))
}

func TestRequestDeleteConfirmedThenAlreadyAbsent(t *testing.T) {
	yes, no := true, false
	gw := &fakeGateway{deletes: []Ack{{OK: true, Deleted: &yes}, {OK: true, Deleted: &no}}}
	c, store, _ := setup(t, gw)
	ctx := context.Background()
	c.RefreshRange(ctx, 7)

	first := c.RequestDelete(ctx, owner, "ev-1", "tok")
	second := c.RequestDelete(ctx, owner, "ev-1", "tok")
	c.Wait()

	assert.Equal(t, Confirmed, first.Kind)
	assert.Equal(t, AlreadyAbsent, second.Kind)
	assert.Equal(t, "event was already removed", second.Message())
	assert.Equal(t, 2, gw.count(gateway.SyncNow))
	assert.Equal(t, []string{"2"}, ids(c.Items()))

	items, err := store.Store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(items), "1")
}

func TestRequestDeleteRejectedKeepsLocalRemoval(t *testing.T) {
	gw := &fakeGateway{deletes: []Ack{{OK: false, Error: "not allowed"}}}
	c, _, _ := setup(t, gw)
	ctx := context.Background()
	c.RefreshRange(ctx, 7)

	out := c.RequestDelete(ctx, owner, "ev-2", "tok")
	c.Wait()

	assert.Equal(t, Rejected, out.Kind)
	assert.Equal(t, "not allowed", out.Reason)
	assert.Equal(t, "calendar rejected the request: not allowed", out.Message())
	assert.Equal(t, 0, gw.count(gateway.SyncNow))
	assert.Equal(t, []string{"1"}, ids(c.Items()))
}

func TestRequestDeleteSwallowsLocalDeleteFailure(t *testing.T) {
	gw := &fakeGateway{deletes: []Ack{{OK: true}}}
	c, store, _ := setup(t, gw)
	store.delErr = errors.New("disk full")

	out := c.RequestDelete(context.Background(), owner, "ev-4", "tok")
	c.Wait()

	assert.Equal(t, Confirmed, out.Kind)
}

func TestRequestDeleteRemovesWholeSeries(t *testing.T) {
	gw := &fakeGateway{deletes: []Ack{{OK: true}}}
	c, store, _ := setup(t, gw)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, cache.Item{ID: "r1", ExternalEventID: "series", Title: "Standup", StartAt: "2024-01-11T09:00:00Z"}))
	require.NoError(t, store.Upsert(ctx, cache.Item{ID: "r2", ExternalEventID: "series", Title: "Standup", StartAt: "2024-02-20T09:00:00Z"}))
	require.Contains(t, ids(c.RefreshRange(ctx, 7)), "r1")

	out := c.RequestDelete(ctx, owner, "series", "tok")
	c.Wait()

	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, []string{"1", "2", "4"}, ids(c.RefreshRange(ctx, 60)))
}

func TestRequestDeleteIgnoresBackgroundSyncFailure(t *testing.T) {
	yes := true
	gw := &fakeGateway{deletes: []Ack{{OK: true, Deleted: &yes}}, syncErr: errors.New("offline")}
	c, _, _ := setup(t, gw)
	ctx := context.Background()
	c.RefreshRange(ctx, 7)

	out := c.RequestDelete(ctx, owner, "ev-2", "tok")
	c.Wait()

	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, 1, gw.count(gateway.SyncNow))
	assert.Equal(t, []string{"1"}, ids(c.Items()))
}

func TestRequestDeleteTransportFallback(t *testing.T) {
	gw := &fakeGateway{deleteErr: errors.Wrap(gateway.ErrTransport, "connection reset")}
	c, store, d := setup(t, gw)
	ctx := context.Background()
	c.RefreshRange(ctx, 7)

	out := c.RequestDelete(ctx, owner, "ev-1", "tok")
	c.Wait()

	assert.Equal(t, Pending, out.Kind)
	assert.Equal(t, "delete request sent, will refresh shortly", out.Message())
	require.Len(t, gw.fallbacks, 1)
	assert.Equal(t, gateway.DeleteRequest("tok", "ev-1"), gw.fallbacks[0])
	require.Len(t, d.funcs, 1)
	assert.Equal(t, 1500*time.Millisecond, d.delays[0])

	listsBefore := store.lists
	d.funcs[0]()
	assert.Equal(t, listsBefore+1, store.lists)
	assert.Equal(t, []string{"2"}, ids(c.Items()))
}

func TestRequestUpdateRejectedKeepsPatch(t *testing.T) {
	gw := &fakeGateway{update: Ack{OK: false, Error: "calendar is read-only"}, syncErr: errors.New("offline")}
	c, store, _ := setup(t, gw)
	ctx := context.Background()
	items := c.RefreshRange(ctx, 7)
	title := "Orthodontist"

	out := c.RequestUpdate(ctx, owner, items[0], cache.Patch{Title: &title}, "tok")

	assert.Equal(t, Rejected, out.Kind)
	assert.Equal(t, "calendar is read-only", out.Reason)
	assert.Equal(t, 1, gw.count(gateway.SyncNow))
	require.Len(t, gw.payloads, 1)
	assert.Equal(t, "Orthodontist", gw.payloads[0].Title)
	assert.Equal(t, "2024-01-10T18:00:00Z", gw.payloads[0].StartAt)

	cached, err := cache.ListInRange(ctx, store, today.Add(-24*time.Hour), today.Add(24*time.Hour), time.UTC)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Orthodontist", cached[0].Title)
	assert.Equal(t, "Orthodontist", c.Items()[0].Title)
}

func TestRequestUpdateConfirmed(t *testing.T) {
	gw := &fakeGateway{update: Ack{OK: true, FileID: "f-1"}}
	c, _, _ := setup(t, gw)
	items := c.RefreshRange(context.Background(), 7)
	loc := "Room 4"

	out := c.RequestUpdate(context.Background(), owner, items[1], cache.Patch{Location: &loc}, "tok")

	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, "f-1", out.FileID)
	assert.Equal(t, "event updated", out.Message())
	assert.Equal(t, []gateway.Action{gateway.UpdateEvent, gateway.SyncNow}, gw.calls)
}

func TestRequestUpdateTransportFallback(t *testing.T) {
	gw := &fakeGateway{updateErr: errors.Wrap(gateway.ErrTransport, "eof")}
	c, _, d := setup(t, gw)
	items := c.RefreshRange(context.Background(), 7)
	title := "Moved"

	out := c.RequestUpdate(context.Background(), owner, items[0], cache.Patch{Title: &title}, "tok")
	c.Wait()

	assert.Equal(t, Pending, out.Kind)
	require.Len(t, gw.fallbacks, 1)
	assert.Equal(t, gateway.UpdateEvent, gw.fallbacks[0].Action)
	assert.Len(t, d.funcs, 1)
	assert.Equal(t, 1, gw.count(gateway.SyncNow))
}

func TestRequestUpdateDenied(t *testing.T) {
	gw := &fakeGateway{}
	c, _, _ := setup(t, gw)
	title := "x"

	out := c.RequestUpdate(context.Background(), stranger, cache.Item{ID: "1"}, cache.Patch{Title: &title}, "tok")

	assert.Equal(t, Denied, out.Kind)
	assert.Empty(t, gw.calls)
}

func TestIngestOverwritesByExternalID(t *testing.T) {
	c, store, _ := setup(t, &fakeGateway{})
	ctx := context.Background()

	err := c.Ingest(ctx, []cache.Item{
		{ExternalEventID: "ev-1", Title: "Dentist (moved)", StartAt: "2024-01-11T18:00:00Z"},
		{ExternalEventID: "ev-9", Title: "New", StartAt: "2024-01-13T18:00:00Z"},
	})
	require.NoError(t, err)

	items, err := store.Store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 6)
	got := c.RefreshRange(ctx, 7)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Dentist (moved)", got[0].Title)
	require.NotNil(t, got[0].SyncedAt)
	assert.True(t, today.Equal(*got[0].SyncedAt))
}

func TestNewCaller(t *testing.T) {
	assert.True(t, NewCaller("a", "a").IsOwner)
	assert.False(t, NewCaller("a", "b").IsOwner)
	assert.False(t, NewCaller("", "").IsOwner)
}

type fakeFetcher struct {
	start, end time.Time
	items      []cache.Item
	err        error
}

func (f *fakeFetcher) Fetch(_ context.Context, start, end time.Time) ([]cache.Item, error) {
	f.start, f.end = start, end
	return f.items, f.err
}

func TestPull(t *testing.T) {
	c, _, _ := setup(t, &fakeGateway{})
	f := &fakeFetcher{items: []cache.Item{{ExternalEventID: "ev-7", Title: "Concert", StartAt: "2024-01-11T20:00:00Z"}}}

	got, err := c.Pull(context.Background(), f, 2)

	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).Equal(f.start))
	assert.True(t, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond).Equal(f.end))
	require.Len(t, got, 3)
	assert.Equal(t, "Concert", got[1].Title)
}

func TestPullFetchError(t *testing.T) {
	c, _, _ := setup(t, &fakeGateway{})

	_, err := c.Pull(context.Background(), &fakeFetcher{err: errors.New("boom")}, 2)

	assert.ErrorContains(t, err, "boom")
}
