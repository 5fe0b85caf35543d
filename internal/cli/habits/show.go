package habits

import (
	"context"

	"github.com/julianstephens/habitual/internal/cli"
)

const showTimeFormat = "2006-01-02 15:04"

type ShowCmd struct {
	Ref string `arg:"" help:"Habit id, id prefix or title."`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	h, err := ctx.FindHabit(c.Ref)
	if err != nil {
		return err
	}
	loc := ctx.Clock.Now().Location()

	status := "due"
	if h.Completed {
		status = "done"
	}

	ctx.Println(h.Title)
	ctx.Printf("  %-13s%s\n", "ID:", h.ID)
	ctx.Printf("  %-13s%s\n", "Frequency:", h.Frequency)
	ctx.Printf("  %-13s%s\n", "Color:", h.Color)
	ctx.Printf("  %-13s%s\n", "Status:", status)
	ctx.Printf("  %-13s%d\n", "Streak:", h.Streak)
	if h.LastCompleted != nil {
		ctx.Printf("  %-13s%s\n", "Last done:", h.LastCompleted.In(loc).Format(showTimeFormat))
	} else {
		ctx.Printf("  %-13s%s\n", "Last done:", "never")
	}
	ctx.Printf("  %-13s%s\n", "Created:", h.CreatedAt.In(loc).Format(showTimeFormat))
	if h.Description != "" {
		ctx.Printf("  %-13s%s\n", "Description:", h.Description)
	}
	if n := len(h.CompletedDates); n > 0 {
		ctx.Printf("  %-13s%d day(s), most recent %s\n", "History:", n, h.CompletedDates[n-1])
	} else {
		ctx.Printf("  %-13s%s\n", "History:", "none")
	}
	return nil
}

