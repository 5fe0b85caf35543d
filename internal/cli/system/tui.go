package system

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/habitual/internal/cli"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/lock"
	"github.com/julianstephens/habitual/internal/tui"
)

type TuiCmd struct{}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	interval, err := ctx.Config.Interval()
	if err != nil {
		return err
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

	// Snapshot on startup, after a successful load.
	ctx.PerformAutomaticBackup()

	pollCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctx.Repo.StartPolling(pollCtx, interval); err != nil {
		return err
	}
	defer ctx.Repo.StopPolling()

	model := tui.NewModel(ctx.Repo, tui.Options{
		DefaultFrequency: ctx.Config.Frequency(),
		DefaultColor:     ctx.Config.DefaultColor,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return ctx.Repo.Flush()
}
