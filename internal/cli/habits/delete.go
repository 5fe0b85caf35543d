package habits

import (
	"context"

	"github.com/julianstephens/habitual/internal/cli"
)

type DeleteCmd struct {
	Ref string `arg:"" help:"Habit id, id prefix or title."`
	Yes bool   `short:"y" help:"Delete without asking for confirmation."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habit, err := ctx.FindHabit(c.Ref)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := ctx.Confirm("Delete habit \"" + habit.Title + "\" and its history?")
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Delete cancelled.")
			return nil
		}
	}

	if _, err := ctx.Repo.Delete(habit.ID); err != nil {
		return err
	}
	ctx.Printf("✓ Deleted %q\n", habit.Title)
	return nil
}
