package habits

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/models"
)

type AddCmd struct {
	Title       string `arg:"" help:"Habit title."`
	Description string `short:"d" help:"Optional description."`
	Frequency   string `short:"f" help:"How often the habit is due: minutely, hourly, daily or weekly (default from config)."`
	Color       string `short:"c" help:"Accent color as #RRGGBB (default from config)."`
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	frequency := ctx.Config.Frequency()
	if c.Frequency != "" {
		f, err := models.ParseFrequency(c.Frequency)
		if err != nil {
			return err
		}
		frequency = f
	}

	color := ctx.Config.DefaultColor
	if c.Color != "" {
		if !config.ValidColor(c.Color) {
			return fmt.Errorf("invalid color %q (expected #RRGGBB)", c.Color)
		}
		color = c.Color
	}

	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habit, err := ctx.Repo.Create(c.Title, c.Description, frequency, color)
	if err != nil {
		return err
	}

	ctx.Printf("✓ Added %s habit %q (id %s)\n", habit.Frequency, habit.Title, habit.ID)
	return nil
}
