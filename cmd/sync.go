package cmd

import (
	"context"

	"calboard/internal/config"

	"github.com/rs/zerolog/log"
)

func syncCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()
	imp := newImporter()
	days := config.Gist().Int(config.REFRESH_DAYS)
	if err := a.useCase.SyncOnce(imp, days); err != nil {
		log.Error().Err(err).Msg("initial sync failed")
	}
	a.useCase.TaskSync(config.Gist().String(config.SYNC_CRON), imp, days)
	<-ctx.Done()
	a.useCase.Stop()
}
