package system

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
)

type DebugCmd struct {
	DBPath *DebugDBPathCmd `cmd:"" help:"Show storage, config and backup paths."`
	Dump   *DebugDumpCmd   `cmd:"" help:"Dump stored habit data as JSON."`
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *cli.Context) error {
	output := map[string]string{
		"path":    ctx.Store.GetConfigPath(),
		"config":  ctx.ConfigPath,
		"backups": ctx.Backups().GetBackupDir(),
	}

	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	ctx.Println(string(jsonBytes))
	return nil
}

type DebugDumpCmd struct {
	Habit string `arg:"" optional:"" help:"ID, ID prefix or title of a single habit to dump."`
}

// Run prints what is stored, byte for byte re-indented. With a habit
// reference it prints that habit as the repository sees it after loading.
func (cmd *DebugDumpCmd) Run(ctx *cli.Context) error {
	if cmd.Habit != "" {
		if err := ctx.Open(context.Background()); err != nil {
			return fmt.Errorf("failed to load database: %w", err)
		}
		habit, err := ctx.FindHabit(cmd.Habit)
		if err != nil {
			return err
		}
		jsonBytes, err := json.MarshalIndent(habit, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal habit: %w", err)
		}
		ctx.Println(string(jsonBytes))
		return nil
	}

	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	raw, err := ctx.Store.Get(context.Background(), constants.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to read habits: %w", err)
	}
	if len(raw) == 0 {
		ctx.Println("null")
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("stored habits are not valid JSON: %w", err)
	}
	ctx.Println(out.String())
	return nil
}
