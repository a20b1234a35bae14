package cmd

import (
	"context"
	"fmt"
	"time"

	"calboard/internal/cache"
	"calboard/internal/config"
	"calboard/internal/reconcile"

	"github.com/rs/zerolog/log"
)

func refreshCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()
	printItems(a.controller.RefreshRange(ctx, config.Gist().Int(config.REFRESH_DAYS)))
}

func deleteCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()
	eventID := config.Gist().String(config.EVENT_ID)
	if eventID == "" {
		log.Error().Msg("event.id is required")
		return
	}
	a.controller.RefreshRange(ctx, config.Gist().Int(config.REFRESH_DAYS))
	out := a.controller.RequestDelete(ctx, a.caller, eventID, config.Gist().String(config.GATEWAY_TOKEN))
	fmt.Println(out.Message())
	waitPending(ctx, a, out)
}

func updateCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()
	eventID := config.Gist().String(config.EVENT_ID)
	var item *cache.Item
	for _, it := range a.controller.RefreshRange(ctx, config.Gist().Int(config.REFRESH_DAYS)) {
		if it.ExternalEventID == eventID {
			item = &it
			break
		}
	}
	if item == nil {
		log.Error().Str("eventID", eventID).Msg("event not found in synced range")
		return
	}
	out := a.controller.RequestUpdate(ctx, a.caller, *item, patchFromConfig(), config.Gist().String(config.GATEWAY_TOKEN))
	fmt.Println(out.Message())
	waitPending(ctx, a, out)
}

func patchFromConfig() cache.Patch {
	var p cache.Patch
	for key, field := range map[string]**string{
		config.PATCH_TITLE:       &p.Title,
		config.PATCH_DESCRIPTION: &p.Description,
		config.PATCH_LOCATION:    &p.Location,
	} {
		if v := config.Gist().String(key); v != "" {
			*field = &v
		}
	}
	return p
}

// waitPending lets background gateway calls, and the deferred refresh of a
// pending outcome, finish before a one-shot command exits.
func waitPending(ctx context.Context, a *app, out reconcile.Outcome) {
	a.controller.Wait()
	if out.Kind != reconcile.Pending {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(a.controller.RetryDelay() + time.Second):
		printItems(a.controller.Items())
	}
}

func printItems(items []cache.Item) {
	for _, item := range items {
		fmt.Printf("%s  %s  [%s]\n", item.StartAt, item.Title, item.ExternalEventID)
	}
}
