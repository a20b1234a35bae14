package cmd

import (
	"context"
	"fmt"
	"time"

	"calboard/internal/config"
	"calboard/internal/exporter"

	"github.com/rs/zerolog/log"
)

// expandCmd prints the board for the next expand.days: schedule occurrences
// and synced events, loaded concurrently.
func expandCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()

	from := time.Now().In(a.location)
	to := from.AddDate(0, 0, config.Gist().Int(config.EXPAND_DAYS))
	view, err := a.useCase.LoadView(ctx, a.caller, from, to, config.Gist().Int(config.REFRESH_DAYS))
	if err != nil {
		log.Error().Err(err).Msg("error loading board")
		return
	}
	for _, occ := range view.Occurrences {
		fmt.Printf("%s  %s\n", occ.At.In(a.location).Format("2006-01-02 15:04"), occ.Schedule.Title)
	}
	printItems(view.Synced)

	var exp exporter.CalExporter = &exporter.Noop{}
	if fname := config.Gist().String(config.EXPORT_FILE); fname != "" {
		exp = exporter.NewFileExporter(fname)
	}
	if err := exp.Set(view.Occurrences); err != nil {
		log.Error().Err(err).Msg("error exporting occurrences")
	}
}
