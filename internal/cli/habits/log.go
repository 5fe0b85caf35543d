package habits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

const (
	logNameWidth = 20
	maxLogDays   = 90
)

// LogCmd prints an ASCII grid of completion days.
type LogCmd struct {
	Ref   string `arg:"" optional:"" help:"Only show this habit (id, id prefix or title)."`
	Days  int    `help:"Number of days to show." default:"14"`
	Until string `help:"Last day shown (YYYY-MM-DD). Defaults to today."`
}

func (c *LogCmd) Run(ctx *cli.Context) error {
	if c.Days < 1 || c.Days > maxLogDays {
		return fmt.Errorf("--days must be between 1 and %d", maxLogDays)
	}
	now := ctx.Clock.Now()
	end := utils.StartOfDay(now)
	if c.Until != "" {
		until, err := utils.ParseDateInLocation(c.Until, now.Location())
		if err != nil {
			return fmt.Errorf("invalid --until date %q (expected YYYY-MM-DD): %w", c.Until, err)
		}
		if until.After(end) {
			return fmt.Errorf("--until %s is in the future", c.Until)
		}
		end = until
	}

	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habits := ctx.Repo.List()
	if c.Ref != "" {
		h, err := ctx.FindHabit(c.Ref)
		if err != nil {
			return err
		}
		habits = []models.Habit{h}
	}
	if len(habits) == 0 {
		ctx.Println("No habits yet.")
		return nil
	}

	if c.Until == "" {
		ctx.Printf("Habit log (last %d days):\n\n", c.Days)
	} else {
		ctx.Printf("Habit log (%d days to %s):\n\n", c.Days, utils.DayKey(end))
	}
	ctx.Printf("%s", renderLog(habits, end, c.Days))
	return nil
}

// renderLog draws one row per habit for the days ending on end.
func renderLog(habits []models.Habit, end time.Time, days int) string {
	var b strings.Builder
	start := end.AddDate(0, 0, -(days - 1))

	b.WriteString(cli.Pad("Habit", logNameWidth))
	for i := 0; i < days; i++ {
		fmt.Fprintf(&b, " %5s", start.AddDate(0, 0, i).Format("01/02"))
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", logNameWidth+6*days))
	b.WriteString("\n")

	for _, h := range habits {
		b.WriteString(cli.Pad(cli.Truncate(h.Title, logNameWidth), logNameWidth))
		for i := 0; i < days; i++ {
			if h.CompletedOn(utils.DayKey(start.AddDate(0, 0, i))) {
				b.WriteString("  x   ")
			} else {
				b.WriteString("  .   ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
