package habits

import (
	"context"

	"github.com/julianstephens/habitual/internal/cli"
)

// DoneCmd toggles a habit: it completes a due habit and undoes a completion
// made in the current window.
type DoneCmd struct {
	Ref string `arg:"" help:"Habit id, id prefix or title."`
}

func (c *DoneCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habit, err := ctx.FindHabit(c.Ref)
	if err != nil {
		return err
	}
	toggled, err := ctx.Repo.Toggle(habit.ID)
	if err != nil {
		return err
	}

	if toggled.Completed {
		ctx.Printf("✓ Completed %q (streak %d)\n", toggled.Title, toggled.Streak)
	} else {
		ctx.Printf("Undid %q (streak %d)\n", toggled.Title, toggled.Streak)
	}
	return nil
}
