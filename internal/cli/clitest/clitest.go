// Package clitest builds command contexts over an in-memory store for tests.
package clitest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/repository"
	"github.com/julianstephens/habitual/internal/storage"
)

// Now is the default fixture time, a Wednesday morning in UTC.
var Now = time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)

type Fixture struct {
	Ctx   *cli.Context
	Store *storage.MemoryStore
	Clock *clock.Manual
	Out   *bytes.Buffer
}

// New returns a fixture with sequential ids (habit-1, habit-2, ...) and the
// clock frozen at Now.
func New(t *testing.T) *Fixture {
	t.Helper()
	return build(t, storage.NewMemoryStore(), clock.NewManual(Now))
}

// Share returns a fixture over the same store and clock with its own
// repository, as a second process would see them.
func (f *Fixture) Share(t *testing.T) *Fixture {
	t.Helper()
	return build(t, f.Store, f.Clock)
}

func build(t *testing.T, store *storage.MemoryStore, clk *clock.Manual) *Fixture {
	f := &Fixture{
		Store: store,
		Clock: clk,
		Out:   &bytes.Buffer{},
	}
	dir := t.TempDir()
	f.Ctx = &cli.Context{
		Store:      f.Store,
		Config:     config.Default(),
		ConfigPath: filepath.Join(dir, "config.yaml"),
		ConfigDir:  dir,
		Clock:      f.Clock,
		Out:        f.Out,
		In:         strings.NewReader(""),
	}
	f.Ctx.Repo = repository.New(f.Store,
		repository.WithClock(f.Clock),
		repository.WithIDGenerator(repository.NewSequenceGenerator("habit")),
		repository.WithRetry(1, time.Millisecond),
	)
	t.Cleanup(func() { _ = f.Ctx.Close() })
	return f
}

// Seed opens the context and creates habits with the given titles and
// frequencies.
func (f *Fixture) Seed(t *testing.T, habits ...models.Habit) []models.Habit {
	t.Helper()
	if err := f.Ctx.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	var out []models.Habit
	for _, h := range habits {
		created, err := f.Ctx.Repo.Create(h.Title, h.Description, h.Frequency, h.Color)
		if err != nil {
			t.Fatalf("Create(%q) failed: %v", h.Title, err)
		}
		out = append(out, created)
	}
	return out
}

// Input feeds answers to interactive prompts.
func (f *Fixture) Input(s string) {
	f.Ctx.In = strings.NewReader(s)
}

// Output returns and clears everything written so far.
func (f *Fixture) Output() string {
	s := f.Out.String()
	f.Out.Reset()
	return s
}
