package backups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/lock"
)

const listTimeFormat = "2006-01-02 15:04:05"

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	habits := ctx.Repo.List()
	backupPath, err := ctx.Backups().CreateBackup(habits)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	ctx.Printf("✓ Backup created: %s (%d habits)\n", filepath.Base(backupPath), len(habits))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr := ctx.Backups()
	backups, err := mgr.ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		ctx.Println("No backups found.")
		ctx.Printf("Backups are stored in: %s\n", mgr.GetBackupDir())
		return nil
	}

	ctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	for _, b := range backups {
		sizeKB := float64(b.Size) / 1024.0
		ctx.Printf("  %s  %s  (%.1f KB)\n", b.Timestamp.Format(listTimeFormat), filepath.Base(b.Path), sizeKB)
	}
	ctx.Printf("\nBackup directory: %s\n", mgr.GetBackupDir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Restore without asking for confirmation."`
}

// resolve accepts a path that exists as given, or a file name inside the
// backup directory.
func (c *BackupRestoreCmd) resolve(ctx *cli.Context) (string, error) {
	if _, err := os.Stat(c.BackupFile); err == nil {
		return filepath.Abs(c.BackupFile)
	}
	if filepath.IsAbs(c.BackupFile) {
		return "", fmt.Errorf("backup file not found: %s", c.BackupFile)
	}

	mgr := ctx.Backups()
	candidate := mgr.Resolve(c.BackupFile)
	if _, err := os.Stat(candidate); err != nil {
		return "", apperrors.WithHint(
			fmt.Errorf("backup file not found: tried current directory and %s", mgr.GetBackupDir()),
			"run 'habitual backup list' to see available backups")
	}
	return candidate, nil
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	backupPath, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	l, err := lock.Acquire(ctx.ConfigDir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return apperrors.WithHint(err, "stop the running watch or tui session before restoring")
		}
		return err
	}
	defer func() { _ = l.Release() }()

	if err := ctx.Open(context.Background()); err != nil {
		return err
	}

	if !c.Yes {
		ctx.Println("⚠️  WARNING: This will replace your current habits with the backup.")
		ctx.Println("A backup of your current habits will be created before restoring.")
		ctx.Printf("\nRestore from: %s\n", backupPath)
		ok, err := ctx.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Restore cancelled.")
			return nil
		}
	}

	habits, safetyPath, err := ctx.Backups().Restore(backupPath, ctx.Repo.List())
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	report, err := ctx.Repo.Replace(habits)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if err := ctx.Repo.Flush(); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	ctx.Printf("✓ Restored %d habit(s) from %s\n", len(ctx.Repo.List()), filepath.Base(backupPath))
	ctx.Printf("  Previous habits saved to %s\n", filepath.Base(safetyPath))
	if report.HasIssues() {
		ctx.Println(report.FormatReport())
	}
	return nil
}
