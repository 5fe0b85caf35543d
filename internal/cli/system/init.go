package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/repository"
	"github.com/julianstephens/habitual/internal/storage/postgres"
)

type InitCmd struct {
	Force  bool   `help:"Delete the existing habit file before initializing."`
	Source string `help:"Existing store (file path or PostgreSQL URL) to copy habits from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.Printf("Initialized habitual storage at: %s\n", ctx.Store.GetConfigPath())

	if _, err := os.Stat(ctx.ConfigPath); errors.Is(err, os.ErrNotExist) {
		if err := ctx.Config.Save(ctx.ConfigPath); err != nil {
			return err
		}
		ctx.Printf("Wrote default config to: %s\n", ctx.ConfigPath)
	}

	if c.Source != "" {
		ctx.Printf("Copying habits from: %s\n", c.Source)
		n, err := c.copyFrom(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		ctx.Printf("✓ Copied %d habit(s)\n", n)
	}
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	if _, ok := ctx.Store.(*postgres.Store); ok {
		return errors.New("--force only applies to file-based storage")
	}

	path := ctx.Store.GetConfigPath()
	if c.Source != "" {
		absPath, err := filepath.Abs(path)
		if err == nil {
			path = absPath
		}
		if absSource, err := filepath.Abs(c.Source); err == nil && absSource == path {
			return fmt.Errorf("cannot use --force when source and destination are the same: %s", path)
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing storage: %w", err)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to delete existing storage: %w", err)
		}
		ctx.Printf("Deleted existing storage at: %s\n", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to access existing storage: %w", err)
	}
	return nil
}

// copyFrom reads the source collection without modifying it and replaces
// the destination collection with it.
func (c *InitCmd) copyFrom(ctx *cli.Context) (int, error) {
	source, err := cli.OpenStore(c.Source)
	if err != nil {
		return 0, err
	}
	if err := source.Load(); err != nil {
		return 0, fmt.Errorf("failed to load source storage: %w", err)
	}
	defer source.Close()

	raw, err := source.Get(context.Background(), constants.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read source habits: %w", err)
	}
	habits, report, corrupt := repository.Decode(raw)
	if corrupt {
		return 0, errors.New("source habits are not valid JSON")
	}
	if report.HasIssues() {
		ctx.Println(report.FormatReport())
	}

	if err := ctx.Open(context.Background()); err != nil {
		return 0, err
	}
	if _, err := ctx.Repo.Replace(habits); err != nil {
		return 0, err
	}
	if err := ctx.Repo.Flush(); err != nil {
		return 0, err
	}
	return len(habits), nil
}
