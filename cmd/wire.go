package cmd

import (
	"context"
	"time"

	"calboard/internal/cache"
	"calboard/internal/config"
	"calboard/internal/domain"
	"calboard/internal/gateway"
	"calboard/internal/importer"
	"calboard/internal/recurrence"
	"calboard/internal/reconcile"
	"calboard/internal/store/postgres"
	"calboard/internal/store/yamlfile"

	"github.com/rs/zerolog/log"
)

// app holds the collaborators shared by every command.
type app struct {
	location   *time.Location
	controller *reconcile.Controller
	useCase    *domain.UseCase
	caller     reconcile.Caller
	close      func()
}

func newApp(ctx context.Context) *app {
	a := &app{location: location(), close: func() {}}

	var (
		store     cache.Store
		schedules domain.ScheduleRepository
	)
	if dsn := config.Gist().String(config.DB_DSN); dsn != "" {
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("error opening database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("error migrating database")
		}
		store = postgres.NewCacheStore(db, a.location)
		schedules = postgres.NewScheduleRepository(db)
		a.close = db.Close
	} else {
		store = cache.NewFileStore(config.Gist().String(config.CACHE_FILE), a.location)
		schedules = yamlfile.New(config.Gist().String(config.SCHEDULES_FILE))
	}

	gw := gateway.NewClient(config.Gist().String(config.GATEWAY_URL), timeout())
	a.controller = reconcile.New(store, gw,
		reconcile.WithLocation(a.location),
		reconcile.WithRetryDelay(config.Gist().Duration(config.REFRESH_DELAY)),
		reconcile.WithDays(config.Gist().Int(config.REFRESH_DAYS)),
	)
	a.useCase = domain.New(ctx, schedules, a.controller, recurrence.Expander{Budget: config.Gist().Int(config.EXPAND_BUDGET)})
	a.caller = reconcile.NewCaller(
		config.Gist().String(config.CALLER_IDENTITY),
		config.Gist().String(config.OWNER_IDENTITY),
	)
	return a
}

func newImporter() importer.CalImporter {
	switch {
	case config.Gist().String(config.CALDAV_URL) != "":
		cd, err := importer.NewCalDAV(
			config.Gist().String(config.CALDAV_URL),
			config.Gist().String(config.CALDAV_USER),
			config.Gist().String(config.CALDAV_PASS),
			location(),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("error creating caldav importer")
		}
		return cd
	case config.Gist().String(config.ICS_URL) != "":
		return importer.NewICSFeed(
			config.Gist().String(config.ICS_URL),
			config.Gist().String(config.CALDAV_USER),
			config.Gist().String(config.CALDAV_PASS),
			location(),
		)
	}
	log.Warn().Msg("no caldav.url or ics.url configured, using noop importer")
	return &importer.Noop{}
}

func location() *time.Location {
	tz := config.Gist().String(config.TIMEZONE)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Error().Err(err).Str("timezone", tz).Msg("error getting location by timezone id")
		return time.Local
	}
	return loc
}

func timeout() time.Duration {
	if d := config.Gist().Duration(config.GATEWAY_TIMEOUT); d > 0 {
		return d
	}
	return 15 * time.Second
}
