package cmd

import (
	"context"

	"calboard/internal/importer"
)

func noopCmd(ctx context.Context) {
	a := newApp(ctx)
	defer a.close()
	a.useCase.TaskSync("* * * * *", &importer.Noop{}, 0)
	<-ctx.Done()
	a.useCase.Stop()
}
