package migration

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func migrationFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, content := range files {
		out[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return out
}

func newRunner(t *testing.T, db *sql.DB, files map[string]string) *Runner {
	t.Helper()
	return NewRunner(db, migrationFS(files), SQLite)
}

// forceVersion records version without running any step.
func forceVersion(t *testing.T, r *Runner, version int) {
	t.Helper()
	if err := r.ensureTable(); err != nil {
		t.Fatalf("ensureTable failed: %v", err)
	}
	if err := r.writeVersion(r.db, version); err != nil {
		t.Fatalf("writeVersion failed: %v", err)
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	return count == 1
}

func TestCurrentVersion(t *testing.T) {
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"001_test.sql": "CREATE TABLE test (id INTEGER);",
	})

	version, err := runner.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	forceVersion(t, runner, 5)

	version, err = runner.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
}

func TestSteps(t *testing.T) {
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"003_another.sql":  "CREATE TABLE test2 (id INTEGER);",
		"001_init.sql":     "CREATE TABLE test1 (id INTEGER);",
		"002_add_name.sql": "ALTER TABLE test1 ADD COLUMN name TEXT;",
		"README.md":        "ignored",
	})

	got, err := runner.Steps()
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}

	want := []struct {
		version int
		name    string
	}{{1, "init"}, {2, "add_name"}, {3, "another"}}

	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Version != w.version || got[i].Name != w.name {
			t.Errorf("step %d: expected %d/%s, got %d/%s", i, w.version, w.name, got[i].Version, got[i].Name)
		}
	}
}

func TestUpFromScratch(t *testing.T) {
	db := setupTestDB(t)
	runner := newRunner(t, db, map[string]string{
		"001_init.sql":  `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);`,
		"002_posts.sql": `CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER);`,
	})

	var logged []string
	count, err := runner.Up(func(msg string, _ ...any) { logged = append(logged, msg) })
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 steps applied, got %d", count)
	}
	if got := strings.Join(logged, "|"); got != "Applied migration|Applied migration|Schema migrated" {
		t.Errorf("unexpected progress log %q", got)
	}

	st, err := runner.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st != (Status{Current: 2, Latest: 2}) || st.Pending() {
		t.Errorf("unexpected status %+v", st)
	}

	for _, table := range []string{"users", "posts"} {
		if !tableExists(t, db, table) {
			t.Errorf("%s table was not created", table)
		}
	}
}

func TestUpIncremental(t *testing.T) {
	db := setupTestDB(t)
	files := migrationFS(map[string]string{
		"001_init.sql": `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);`,
	})
	runner := NewRunner(db, files, SQLite)

	count, err := runner.Up(nil)
	if err != nil {
		t.Fatalf("Up (1st) failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 step applied, got %d", count)
	}

	files["002_posts.sql"] = &fstest.MapFile{Data: []byte(`CREATE TABLE posts (id INTEGER PRIMARY KEY);`)}

	st, err := runner.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Pending() {
		t.Errorf("expected a pending step, got %+v", st)
	}

	count, err = runner.Up(nil)
	if err != nil {
		t.Fatalf("Up (2nd) failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 more step applied, got %d", count)
	}

	count, err = runner.Up(nil)
	if err != nil {
		t.Fatalf("Up (3rd) failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no steps on a current schema, got %d", count)
	}
}

func TestUpRollsBackFailedStep(t *testing.T) {
	db := setupTestDB(t)
	runner := newRunner(t, db, map[string]string{
		"001_init.sql": `
			CREATE TABLE users (id INTEGER PRIMARY KEY);
			THIS IS INVALID SQL;
		`,
	})

	if _, err := runner.Up(nil); err == nil {
		t.Fatal("Up should have failed with invalid SQL")
	}

	version, err := runner.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after failed step, got %d", version)
	}
	if tableExists(t, db, "users") {
		t.Error("table should not exist after failed step")
	}
}

func TestNewerDatabaseIsRefused(t *testing.T) {
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql": `CREATE TABLE users (id INTEGER PRIMARY KEY);`,
	})
	forceVersion(t, runner, 10)

	if err := runner.Check(); !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("Check: expected ErrSchemaTooNew, got %v", err)
	}
	if _, err := runner.Up(nil); !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("Up: expected ErrSchemaTooNew, got %v", err)
	}
}

func TestStatusLatest(t *testing.T) {
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql":   `CREATE TABLE users (id INTEGER);`,
		"003_posts.sql":  `CREATE TABLE posts (id INTEGER);`,
		"002_update.sql": `ALTER TABLE users ADD COLUMN name TEXT;`,
	})

	st, err := runner.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Latest != 3 || st.Current != 0 || !st.Pending() || st.TooNew() {
		t.Errorf("unexpected status %+v", st)
	}
	if err := st.Err(); err != nil {
		t.Errorf("a pending schema is not an error: %v", err)
	}
}

func TestStepsRejectBadNames(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing underscore",
			files:   map[string]string{"001init.sql": "SELECT 1;"},
			wantErr: "invalid migration filename format",
		},
		{
			name:    "missing name",
			files:   map[string]string{"001_.sql": "SELECT 1;"},
			wantErr: "invalid migration filename format",
		},
		{
			name:    "non-numeric version",
			files:   map[string]string{"abc_init.sql": "SELECT 1;"},
			wantErr: "invalid version number",
		},
		{
			name:    "zero version",
			files:   map[string]string{"000_init.sql": "SELECT 1;"},
			wantErr: "version must be at least 1",
		},
		{
			name: "duplicate version",
			files: map[string]string{
				"001_init.sql":  "SELECT 1;",
				"001_other.sql": "SELECT 2;",
			},
			wantErr: "duplicate migration version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRunner(t, setupTestDB(t), tt.files).Steps()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDialectBind(t *testing.T) {
	if got := SQLite.bind(1); got != "?" {
		t.Errorf("sqlite bind = %q", got)
	}
	if got := Postgres.bind(2); got != "$2" {
		t.Errorf("postgres bind = %q", got)
	}
}

func TestBundledSQLiteMigrationsApply(t *testing.T) {
	db := setupTestDB(t)
	runner, err := ForDialect(db, SQLite)
	if err != nil {
		t.Fatalf("ForDialect failed: %v", err)
	}

	if _, err := runner.Up(nil); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if !tableExists(t, db, "kv") {
		t.Error("kv table was not created")
	}
	if err := runner.Check(); err != nil {
		t.Errorf("Check failed: %v", err)
	}
}

func TestBundledPostgresMigrationsExist(t *testing.T) {
	runner, err := ForDialect(nil, Postgres)
	if err != nil {
		t.Fatalf("ForDialect failed: %v", err)
	}
	steps, err := runner.Steps()
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	if len(steps) == 0 || steps[0].Version != 1 {
		t.Errorf("expected bundled postgres steps starting at 1, got %+v", steps)
	}
}
