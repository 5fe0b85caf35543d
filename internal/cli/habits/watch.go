package habits

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/lock"
	"github.com/julianstephens/habitual/internal/models"
)

// WatchCmd keeps the collection loaded, applies resets as they come due and
// prints every change until interrupted.
type WatchCmd struct {
	Interval time.Duration `help:"Polling interval (default from config)."`
}

func (c *WatchCmd) Run(ctx *cli.Context) error {
	interval := c.Interval
	if interval == 0 {
		d, err := ctx.Config.Interval()
		if err != nil {
			return err
		}
		interval = d
	}

	l, err := lock.Acquire(ctx.ConfigDir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return apperrors.WithHint(err, "only one watch or tui session may run at a time")
		}
		return err
	}
	defer func() { _ = l.Release() }()

	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Watch(sigCtx, ctx, interval)
}

// Watch polls until runCtx is done. The context must already be open.
func Watch(runCtx context.Context, ctx *cli.Context, interval time.Duration) error {
	prev := ctx.Repo.List()
	cancel := ctx.Repo.Subscribe(func(next []models.Habit) {
		stamp := ctx.Clock.Now().Format(time.TimeOnly)
		for _, line := range describeChanges(prev, next) {
			ctx.Printf("%s  %s\n", stamp, line)
		}
		prev = next
	})
	defer cancel()

	ctx.Printf("Watching %d habit(s), checking every %s. Press Ctrl+C to stop.\n", len(prev), interval)
	if err := ctx.Repo.StartPolling(runCtx, interval); err != nil {
		return err
	}

	<-runCtx.Done()
	ctx.Repo.StopPolling()
	return ctx.Repo.Flush()
}

// describeChanges lists what changed between two snapshots, in next's order
// followed by deletions.
func describeChanges(prev, next []models.Habit) []string {
	before := make(map[string]models.Habit, len(prev))
	for _, h := range prev {
		before[h.ID] = h
	}

	var lines []string
	seen := make(map[string]bool, len(next))
	for _, h := range next {
		seen[h.ID] = true
		old, ok := before[h.ID]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("added %q (%s)", h.Title, h.Frequency))
		case old.Completed && !h.Completed && len(h.CompletedDates) < len(old.CompletedDates):
			lines = append(lines, fmt.Sprintf("%q undone (streak %d)", h.Title, h.Streak))
		case old.Completed && !h.Completed && h.Streak == 0:
			lines = append(lines, fmt.Sprintf("%q is due again, streak reset", h.Title))
		case old.Completed && !h.Completed:
			lines = append(lines, fmt.Sprintf("%q is due again (streak %d)", h.Title, h.Streak))
		case !old.Completed && h.Completed:
			lines = append(lines, fmt.Sprintf("%q completed (streak %d)", h.Title, h.Streak))
		case old.Streak > 0 && h.Streak == 0:
			lines = append(lines, fmt.Sprintf("%q missed a %s window, streak reset", h.Title, h.Frequency))
		case !old.Equal(h):
			lines = append(lines, fmt.Sprintf("%q updated", h.Title))
		}
	}
	for _, h := range prev {
		if !seen[h.ID] {
			lines = append(lines, fmt.Sprintf("deleted %q", h.Title))
		}
	}
	return lines
}
