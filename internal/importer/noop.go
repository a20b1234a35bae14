package importer

import (
	"context"
	"time"

	"calboard/internal/cache"

	"github.com/rs/zerolog/log"
)

var _ CalImporter = (*Noop)(nil)

type Noop struct {
}

func (i *Noop) Fetch(_ context.Context, _, _ time.Time) ([]cache.Item, error) {
	log.Info().Msg("noop importer fetch events call")
	return nil, nil
}
