package system

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/storage/sqlite"
)

var testNow = time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)

// setupContext returns a context over an initialized SQLite store in a
// temporary config directory.
func setupContext(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	store := sqlite.NewStore(filepath.Join(dir, "habitual.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	return newContext(t, dir, store)
}

func newContext(t *testing.T, dir string, store storage.Store) (*cli.Context, *bytes.Buffer) {
	t.Helper()

	ctx := cli.NewContext(config.Default(), filepath.Join(dir, "config.yaml"), store, clock.NewManual(testNow))
	out := &bytes.Buffer{}
	ctx.Out = out
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, out
}
