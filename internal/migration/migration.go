// Package migration brings a database schema up to the version bundled with
// the binary. Every NNN_name.sql script is one step, and the applied version
// is kept in a one-row schema_version table.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitual/migrations"
)

// ErrSchemaTooNew means the database was migrated by a newer build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

// Dialect names a SQL backend: where its scripts live in the bundle and how
// it binds parameters.
type Dialect struct {
	Name string
	dir  string
	bind func(n int) string
}

var (
	SQLite   = Dialect{Name: "sqlite", dir: "sqlite", bind: func(int) string { return "?" }}
	Postgres = Dialect{Name: "postgres", dir: "postgres", bind: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// Step is one numbered script.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Status compares the applied version with the newest bundled one.
type Status struct {
	Current int
	Latest  int
}

func (s Status) Pending() bool { return s.Current < s.Latest }
func (s Status) TooNew() bool  { return s.Current > s.Latest }

// Err reports a database that is ahead of the bundle.
func (s Status) Err() error {
	if !s.TooNew() {
		return nil
	}
	return fmt.Errorf("%w: database is at version %d, this build knows up to %d; upgrade habitual", ErrSchemaTooNew, s.Current, s.Latest)
}

type Runner struct {
	db      *sql.DB
	scripts fs.FS
	dialect Dialect
}

// ForDialect returns a runner over the scripts bundled for d.
func ForDialect(db *sql.DB, d Dialect) (*Runner, error) {
	scripts, err := fs.Sub(migrations.FS, d.dir)
	if err != nil {
		return nil, fmt.Errorf("no bundled %s migrations: %w", d.Name, err)
	}
	return NewRunner(db, scripts, d), nil
}

// NewRunner reads steps from the top level of scripts.
func NewRunner(db *sql.DB, scripts fs.FS, d Dialect) *Runner {
	return &Runner{db: db, scripts: scripts, dialect: d}
}

// Steps lists the scripts in version order. Files other than *.sql are ignored.
func (r *Runner) Steps() ([]Step, error) {
	entries, err := fs.ReadDir(r.scripts, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s migrations: %w", r.dialect.Name, err)
	}

	var steps []Step
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, err := parseName(entry.Name())
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(r.scripts, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		steps = append(steps, Step{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(steps, func(a, b Step) int { return a.Version - b.Version })
	for i := 1; i < len(steps); i++ {
		if steps[i].Version == steps[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d (%s and %s)", steps[i].Version, steps[i-1].Name, steps[i].Name)
		}
	}
	return steps, nil
}

// parseName splits "007_add_index.sql" into 7 and "add_index".
func parseName(file string) (int, string, error) {
	prefix, name, ok := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", file)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", fmt.Errorf("invalid version number in filename %s: %w", file, err)
	}
	if version < 1 {
		return 0, "", fmt.Errorf("invalid version number in filename %s: version must be at least 1", file)
	}
	return version, name, nil
}

func (r *Runner) ensureTable() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// Current returns the applied version, 0 for a database never migrated.
func (r *Runner) Current() (int, error) {
	if err := r.ensureTable(); err != nil {
		return 0, err
	}
	var version int
	switch err := r.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (r *Runner) Status() (Status, error) {
	current, err := r.Current()
	if err != nil {
		return Status{}, err
	}
	steps, err := r.Steps()
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current}
	if len(steps) > 0 {
		st.Latest = steps[len(steps)-1].Version
	}
	return st, nil
}

// Check fails with ErrSchemaTooNew when the database is ahead of the bundle.
func (r *Runner) Check() error {
	st, err := r.Status()
	if err != nil {
		return err
	}
	return st.Err()
}

// Up applies every pending step and returns how many ran. A failed step
// leaves the database at the previous version. logf receives progress in
// the logger's key/value form and may be nil.
func (r *Runner) Up(logf func(msg string, keyvals ...any)) (int, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	current, err := r.Current()
	if err != nil {
		return 0, err
	}
	steps, err := r.Steps()
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		logf("No migrations bundled", "dialect", r.dialect.Name)
		return 0, nil
	}

	st := Status{Current: current, Latest: steps[len(steps)-1].Version}
	if err := st.Err(); err != nil {
		return 0, err
	}
	if !st.Pending() {
		logf("Schema up to date", "version", current)
		return 0, nil
	}

	started := time.Now()
	applied := 0
	for _, step := range steps {
		if step.Version <= current {
			continue
		}
		if err := r.apply(step); err != nil {
			return applied, err
		}
		applied++
		logf("Applied migration", "version", step.Version, "name", step.Name)
	}
	logf("Schema migrated", "from", current, "to", st.Latest, "steps", applied, "took", time.Since(started))
	return applied, nil
}

// apply runs one step and records its version in the same transaction.
func (r *Runner) apply(step Step) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: failed to begin: %w", step.Version, err)
	}
	if _, err := tx.Exec(step.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s) failed: %w", step.Version, step.Name, err)
	}
	if err := r.writeVersion(tx, step.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d: %w", step.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: failed to commit: %w", step.Version, err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (r *Runner) writeVersion(x execer, version int) error {
	if _, err := x.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to clear schema version: %w", err)
	}
	if _, err := x.Exec(`INSERT INTO schema_version (version) VALUES (`+r.dialect.bind(1)+`)`, version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

