package habits

import (
	"context"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/stats"
)

type StatsCmd struct{}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}
	return stats.Render(ctx.Out, stats.Compute(ctx.Repo.List()))
}
