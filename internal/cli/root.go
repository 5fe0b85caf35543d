package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianstephens/habitual/internal/backup"
	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/repository"
	"github.com/julianstephens/habitual/internal/storage"
)

// Context is handed to every command's Run method.
type Context struct {
	Store      storage.Store
	Repo       *repository.Repository
	Config     *config.Config
	ConfigPath string
	// ConfigDir holds logs, backups and the session lock.
	ConfigDir string
	Clock     clock.Clock
	Out       io.Writer
	In        io.Reader

	opened bool
}

// NewContext wires a repository over store. An unreadable habit blob found
// on load is copied into the backup directory before it is discarded.
func NewContext(cfg *config.Config, configPath string, store storage.Store, c clock.Clock) *Context {
	ctx := &Context{
		Store:      store,
		Config:     cfg,
		ConfigPath: configPath,
		ConfigDir:  filepath.Dir(configPath),
		Clock:      c,
		Out:        os.Stdout,
		In:         os.Stdin,
	}
	ctx.Repo = repository.New(store,
		repository.WithClock(c),
		repository.WithCorruptHandler(ctx.saveCorrupt),
	)
	return ctx
}

func (c *Context) saveCorrupt(raw []byte) {
	path, err := c.Backups().SaveCorrupt(raw)
	if err != nil {
		logger.Error("Failed to preserve unreadable habit data", "error", err)
		return
	}
	logger.Warn("Preserved unreadable habit data", "path", path)
	fmt.Fprintf(os.Stderr, "Warning: stored habits could not be read; a copy was saved to %s\n", path)
}

func (c *Context) Backups() *backup.Manager {
	return backup.NewManager(c.ConfigDir, c.Clock)
}

// Open loads the store and then the habit collection. Later calls are no-ops.
func (c *Context) Open(ctx context.Context) error {
	if c.opened {
		return nil
	}
	if err := c.Store.Load(); err != nil {
		return err
	}
	if err := c.Repo.Load(ctx); err != nil {
		return err
	}
	c.opened = true

	if report := c.Repo.LoadReport(); report.Dropped() > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d stored habit(s) were unreadable and skipped. Run 'habitual doctor' for details.\n", report.Dropped())
	}
	return nil
}

// Close drains pending writes and releases the store.
func (c *Context) Close() error {
	var errs []error
	if c.Repo != nil {
		errs = append(errs, c.Repo.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

// PerformAutomaticBackup snapshots the collection and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	if _, err := c.Backups().CreateBackup(c.Repo.List()); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

// Confirm asks a yes/no question on In. Anything but y/yes is a no.
func (c *Context) Confirm(prompt string) (bool, error) {
	c.Printf("%s [y/N]: ", prompt)
	response, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}
