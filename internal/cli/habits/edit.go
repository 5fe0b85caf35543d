package habits

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/models"
)

type EditCmd struct {
	Ref              string `arg:"" help:"Habit id, id prefix or title."`
	Title            string `help:"New title."`
	Description      string `help:"New description."`
	ClearDescription bool   `help:"Remove the description."`
	Frequency        string `short:"f" help:"New frequency: minutely, hourly, daily or weekly."`
	Color            string `short:"c" help:"New accent color as #RRGGBB."`
}

func (c *EditCmd) patch() (models.HabitPatch, error) {
	var patch models.HabitPatch
	if c.Title != "" {
		patch.Title = &c.Title
	}
	switch {
	case c.ClearDescription && c.Description != "":
		return patch, errors.New("--description and --clear-description cannot be combined")
	case c.ClearDescription:
		empty := ""
		patch.Description = &empty
	case c.Description != "":
		patch.Description = &c.Description
	}
	if c.Frequency != "" {
		f, err := models.ParseFrequency(c.Frequency)
		if err != nil {
			return patch, err
		}
		patch.Frequency = &f
	}
	if c.Color != "" {
		if !config.ValidColor(c.Color) {
			return patch, fmt.Errorf("invalid color %q (expected #RRGGBB)", c.Color)
		}
		patch.Color = &c.Color
	}
	if patch.IsEmpty() {
		return patch, errors.New("nothing to change: pass at least one of --title, --description, --clear-description, --frequency or --color")
	}
	return patch, nil
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	patch, err := c.patch()
	if err != nil {
		return err
	}
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habit, err := ctx.FindHabit(c.Ref)
	if err != nil {
		return err
	}
	updated, err := ctx.Repo.Update(habit.ID, patch)
	if err != nil {
		return err
	}

	ctx.Printf("✓ Updated %q\n", updated.Title)
	if habit.Completed && !updated.Completed {
		ctx.Printf("  The new %s window has already passed, so the habit is due again.\n", updated.Frequency)
	}
	return nil
}
