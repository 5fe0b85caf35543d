package habits

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
)

const titleWidth = 24

type ListCmd struct {
	JSON bool `name:"json" help:"Print the collection as JSON."`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}
	habits := ctx.Repo.List()

	if c.JSON {
		data, err := json.MarshalIndent(habits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode habits: %w", err)
		}
		ctx.Println(string(data))
		return nil
	}

	if len(habits) == 0 {
		ctx.Println("No habits yet. Add one with 'habitual add <title>'.")
		return nil
	}

	ids := cli.ShortIDs(habits)
	completed := 0
	for _, h := range habits {
		if h.Completed {
			completed++
		}
		ctx.Printf("%s %s %-8s streak %-4d %s\n",
			cli.StatusMark(h), cli.Pad(cli.Truncate(h.Title, titleWidth), titleWidth), h.Frequency, h.Streak, ids[h.ID])
	}
	ctx.Printf("\nDone: %d/%d\n", completed, len(habits))
	return nil
}
