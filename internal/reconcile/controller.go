package reconcile

import (
	"context"
	"sync"
	"time"

	"calboard/internal/cache"
	"calboard/internal/gateway"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultRetryDelay = 1500 * time.Millisecond
	DefaultDays       = 30
)

// Controller keeps the cache store mirroring the external calendar and
// pushes owner deletes and updates back to it. Within one request the local
// change always happens before the remote dispatch, and the remote dispatch
// before the trailing syncNow. Requests for the same event are not
// serialized.
type Controller struct {
	store    cache.Store
	gateway  gateway.Gateway
	location *time.Location
	now      func() time.Time
	after    func(time.Duration, func())
	delay    time.Duration

	mu    sync.Mutex
	items []cache.Item
	days  int

	wg conc.WaitGroup
}

// Fetcher reads external calendar events starting within [start, end].
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) ([]cache.Item, error)
}

type Option func(*Controller)

func WithLocation(location *time.Location) Option {
	return func(c *Controller) {
		if location != nil {
			c.location = location
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithAfterFunc replaces the timer used for the deferred refresh.
func WithAfterFunc(after func(time.Duration, func())) Option {
	return func(c *Controller) { c.after = after }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.delay = d
		}
	}
}

func WithDays(days int) Option {
	return func(c *Controller) {
		if days >= 0 {
			c.days = days
		}
	}
}

func New(store cache.Store, gw gateway.Gateway, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		gateway:  gw,
		location: time.Local,
		now:      time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		delay: DefaultRetryDelay,
		days:  DefaultDays,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshRange reloads the displayed list with cached items starting between
// today and the end of today+days. It never fails: on a store error the
// result is empty.
func (c *Controller) RefreshRange(ctx context.Context, days int) []cache.Item {
	if days < 0 {
		days = 0
	}
	start, end := c.window(days)
	items, err := cache.ListInRange(ctx, c.store, start, end, c.location)
	if err != nil {
		log.Warn().Err(err).Int("days", days).Msg("error refreshing cached events")
		return []cache.Item{}
	}

	c.mu.Lock()
	c.items = items
	c.days = days
	c.mu.Unlock()
	return append([]cache.Item(nil), items...)
}

// Pull fetches the external calendar for the refresh window, ingests the
// result and reloads the displayed list.
func (c *Controller) Pull(ctx context.Context, f Fetcher, days int) ([]cache.Item, error) {
	if days < 0 {
		days = 0
	}
	start, end := c.window(days)
	fetched, err := f.Fetch(ctx, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching external events")
	}
	if err := c.Ingest(ctx, fetched); err != nil {
		return nil, errors.Wrap(err, "error ingesting external events")
	}
	return c.RefreshRange(ctx, days), nil
}

// window spans today 00:00 through the last instant of today+days.
func (c *Controller) window(days int) (start, end time.Time) {
	y, m, d := c.now().In(c.location).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, c.location)
	end = start.AddDate(0, 0, days+1).Add(-time.Nanosecond)
	return start, end
}

// Items returns a copy of the displayed list.
func (c *Controller) Items() []cache.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cache.Item(nil), c.items...)
}

// Ingest is the refresh path: it overwrites cached items by external event
// id and stamps the sync time.
func (c *Controller) Ingest(ctx context.Context, fetched []cache.Item) error {
	existing, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	byExternal := make(map[string]string, len(existing))
	for _, item := range existing {
		if item.ExternalEventID != "" {
			byExternal[item.ExternalEventID] = item.ID
		}
	}
	syncedAt := c.now()
	for _, item := range fetched {
		if id, ok := byExternal[item.ExternalEventID]; ok && item.ID == "" {
			item.ID = id
		}
		item.SyncedAt = &syncedAt
		if err := c.store.Upsert(ctx, item); err != nil {
			return err
		}
	}
	log.Info().Int("items", len(fetched)).Msg("ingested external events")
	return nil
}

// RequestDelete removes the event locally and asks the external calendar to
// delete it. The local removal is never rolled back.
func (c *Controller) RequestDelete(ctx context.Context, caller Caller, eventID, token string) Outcome {
	if !caller.IsOwner {
		log.Warn().Str("caller", caller.Identity).Str("eventID", eventID).Msg("delete denied")
		return Outcome{Kind: Denied, Action: gateway.DeleteEvent}
	}

	c.removeLocal(ctx, eventID)

	ack, err := c.gateway.DeleteEvent(ctx, token, eventID)
	if err != nil {
		log.Warn().Err(err).Str("eventID", eventID).Msg("delete transport failed, using fallback")
		return c.fallback(ctx, gateway.DeleteRequest(token, eventID))
	}
	if !ack.OK {
		log.Error().Str("eventID", eventID).Str("reason", ack.Error).Msg("delete rejected")
		return Outcome{Kind: Rejected, Action: gateway.DeleteEvent, Reason: ack.Error}
	}

	c.syncInBackground(ctx, token)
	if ack.AlreadyAbsent() {
		return Outcome{Kind: AlreadyAbsent, Action: gateway.DeleteEvent, FileID: ack.FileID}
	}
	log.Info().Str("eventID", eventID).Msg("event deleted")
	return Outcome{Kind: Confirmed, Action: gateway.DeleteEvent, FileID: ack.FileID}
}

// RequestUpdate writes the patch locally first, then sends the full patched
// event. A rejection leaves the local write in place.
func (c *Controller) RequestUpdate(ctx context.Context, caller Caller, item cache.Item, patch cache.Patch, token string) Outcome {
	if !caller.IsOwner {
		log.Warn().Str("caller", caller.Identity).Str("eventID", item.ExternalEventID).Msg("update denied")
		return Outcome{Kind: Denied, Action: gateway.UpdateEvent}
	}

	patched := patch.Apply(item)
	if err := c.store.Upsert(ctx, patched); err != nil {
		log.Warn().Err(err).Str("eventID", item.ExternalEventID).Msg("error writing patch to cache")
	}
	c.replaceLocal(patched)

	payload := gateway.EventPayload{
		Title:       patched.Title,
		Description: patched.Description,
		Location:    patched.Location,
		StartAt:     patched.StartAt,
		EndAt:       patched.EndAt,
		AllDay:      patched.AllDay,
		Status:      patched.Status,
	}
	var out Outcome
	ack, err := c.gateway.UpdateEvent(ctx, token, item.ExternalEventID, payload)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("eventID", item.ExternalEventID).Msg("update transport failed, using fallback")
		out = c.fallback(ctx, gateway.UpdateRequest(token, item.ExternalEventID, payload))
	case !ack.OK:
		log.Error().Str("eventID", item.ExternalEventID).Str("reason", ack.Error).Msg("update rejected")
		out = Outcome{Kind: Rejected, Action: gateway.UpdateEvent, Reason: ack.Error}
	default:
		out = Outcome{Kind: Confirmed, Action: gateway.UpdateEvent, FileID: ack.FileID}
	}

	if ack, err := c.gateway.SyncNow(ctx, token); err != nil || !ack.OK {
		log.Warn().Err(err).Str("reason", ack.Error).Msg("trailing sync failed")
	}
	return out
}

func (c *Controller) RetryDelay() time.Duration {
	return c.delay
}

// Wait blocks until background gateway calls have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// fallback fires req without reading the answer and schedules one deferred
// refresh. There is no retry beyond that refresh.
func (c *Controller) fallback(ctx context.Context, req gateway.Request) Outcome {
	detached := context.WithoutCancel(ctx)
	c.wg.Go(func() {
		c.gateway.Fallback(detached, req)
	})

	c.mu.Lock()
	days := c.days
	c.mu.Unlock()
	c.after(c.delay, func() {
		c.RefreshRange(detached, days)
	})
	return Outcome{Kind: Pending, Action: req.Action}
}

func (c *Controller) syncInBackground(ctx context.Context, token string) {
	detached := context.WithoutCancel(ctx)
	c.wg.Go(func() {
		ack, err := c.gateway.SyncNow(detached, token)
		if err != nil || !ack.OK {
			log.Warn().Err(err).Str("reason", ack.Error).Msg("background sync failed")
		}
	})
}

func (c *Controller) removeLocal(ctx context.Context, eventID string) {
	ids := map[string]struct{}{}
	c.mu.Lock()
	kept := c.items[:0]
	for _, item := range c.items {
		if item.ExternalEventID == eventID {
			ids[item.ID] = struct{}{}
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	c.mu.Unlock()

	// recurring instances share the series id and may sit outside the displayed range
	items, err := c.store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Str("eventID", eventID).Msg("error listing cache for delete")
	}
	for _, item := range items {
		if item.ExternalEventID == eventID {
			ids[item.ID] = struct{}{}
		}
	}
	for id := range ids {
		if err := c.store.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("eventID", eventID).Str("itemID", id).Msg("error deleting cached event")
		}
	}
}

func (c *Controller) replaceLocal(item cache.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i] = item
			return
		}
	}
}
