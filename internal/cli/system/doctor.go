package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/lock"
	"github.com/julianstephens/habitual/internal/repository"
	"github.com/julianstephens/habitual/internal/validation"
)

// schemaVersioner is implemented by the SQL-backed stores.
type schemaVersioner interface {
	SchemaVersion() (current, latest int, err error)
}

// errWarning marks a check that found something worth fixing but not broken.
type errWarning struct{ msg string }

func (w errWarning) Error() string { return w.msg }

func warnf(format string, args ...any) error {
	return errWarning{msg: fmt.Sprintf(format, args...)}
}

type DoctorCmd struct{}

type check struct {
	name string
	// needsStore skips the check when storage could not be loaded.
	needsStore bool
	run        func(*cli.Context) error
}

var checks = []check{
	{"Config file", false, checkConfig},
	{"Clock/timezone", false, checkClockTimezone},
	{"Storage reachable", false, checkStorageReachable},
	{"Schema version", true, checkSchemaVersion},
	{"Migrations complete", true, checkMigrationsComplete},
	{"Habit data", true, checkHabitData},
	{"Backups present", false, checkBackupsPresent},
	{"Session lock", false, checkSessionLock},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	hasError := false
	storeOK := true

	for _, c := range checks {
		if c.needsStore && !storeOK {
			ctx.Printf("⊘ %s: SKIPPED (storage not reachable)\n", c.name)
			continue
		}

		err := c.run(ctx)
		var warning errWarning
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case errors.As(err, &warning):
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			ctx.Printf("   %s\n", indent(warning.msg))
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %s\n", indent(err.Error()))
			hasError = true
			if c.name == "Storage reachable" {
				storeOK = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return errors.New("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n   ")
}

func checkConfig(ctx *cli.Context) error {
	if err := ctx.Config.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(ctx.ConfigPath); errors.Is(err, os.ErrNotExist) {
		return warnf("no config file at %s, using defaults", ctx.ConfigPath)
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context) error {
	loc, err := ctx.Config.Location()
	if err != nil {
		return err
	}
	now := ctx.Clock.Now()
	if now.IsZero() || now.Year() < 2000 {
		return fmt.Errorf("system clock looks wrong: %s", now)
	}
	if now.In(loc).Location().String() != loc.String() {
		return fmt.Errorf("could not convert time to %s", loc)
	}
	return nil
}

func checkStorageReachable(ctx *cli.Context) error {
	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	return nil
}

func checkSchemaVersion(ctx *cli.Context) error {
	sv, ok := ctx.Store.(schemaVersioner)
	if !ok {
		return nil
	}
	current, latest, err := sv.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	return nil
}

func checkMigrationsComplete(ctx *cli.Context) error {
	sv, ok := ctx.Store.(schemaVersioner)
	if !ok {
		return nil
	}
	current, latest, err := sv.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return nil
}

// checkHabitData decodes the stored collection without loading it into the
// repository, so nothing is repaired or rewritten.
func checkHabitData(ctx *cli.Context) error {
	raw, err := ctx.Store.Get(context.Background(), constants.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to read habits: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	habits, report, corrupt := repository.Decode(raw)
	if corrupt {
		return errors.New("stored habits are not valid JSON; the next load will start empty and keep a copy in the backup directory")
	}
	if !report.HasIssues() {
		return nil
	}

	msg := fmt.Sprintf("%d habit(s) readable\n%s", len(habits), report.FormatReport())
	if report.Dropped() > 0 {
		return errors.New(msg)
	}
	for _, issue := range report.Issues {
		if issue.Kind != validation.IssueDuplicateTitle {
			return warnf("%s\nRepairs are saved the next time habits are loaded.", msg)
		}
	}
	return warnf("%s", msg)
}

func checkBackupsPresent(ctx *cli.Context) error {
	backups, err := ctx.Backups().ListBackups()
	if err != nil {
		return warnf("failed to list backups: %v", err)
	}
	if len(backups) == 0 {
		return warnf("no backups found; create one with 'habitual backup create'")
	}
	return nil
}

func checkSessionLock(ctx *cli.Context) error {
	info, err := lock.Inspect(ctx.ConfigDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return warnf("lockfile is unreadable (%v); it will be replaced by the next session", err)
	}
	return warnf("a session (pid %d) has held the lock since %s; it is replaced automatically if that process has exited",
		info.PID, info.Started.Local().Format("2006-01-02 15:04:05"))
}
