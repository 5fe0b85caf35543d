// Package lock guards long-running sessions so only one process polls the
// habit store at a time. One-shot commands write without it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

// ErrLocked is returned when another live session holds the lock.
var ErrLocked = errors.New("another habitual session is running")

// unreadableGrace is how long a lockfile that cannot be parsed is assumed
// to be mid-write by another process rather than abandoned.
const unreadableGrace = 2 * time.Second

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
	nowFunc         = time.Now
)

// Info describes the holder recorded in a lockfile.
type Info struct {
	PID     int
	Started time.Time
}

// Lock is a held session lock. Release it when the session ends.
type Lock struct {
	path string
	info Info
}

func Path(dir string) string {
	return filepath.Join(dir, constants.LockfileName)
}

// Acquire takes the lock in dir. A lockfile left by a process that is no
// longer running is replaced.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := Path(dir)
	info := Info{PID: getpidFunc(), Started: nowFunc().UTC().Truncate(time.Second)}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			_, werr := f.WriteString(format(info))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("failed to write lockfile: %w", errors.Join(werr, cerr))
			}
			logger.Debug("Acquired session lock", "path", path, "pid", info.PID)
			return &Lock{path: path, info: info}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lockfile: %w", err)
		}

		holder, err := Inspect(dir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Released between our create and read.
			continue
		case err == nil && holder.PID != info.PID && alive(holder.PID):
			return nil, fmt.Errorf("%w (pid %d since %s)", ErrLocked, holder.PID, holder.Started.Local().Format(time.DateTime))
		case err != nil && recentlyModified(path):
			// Another process created the file and has not written it yet.
			return nil, fmt.Errorf("%w (lockfile is being written)", ErrLocked)
		}

		logger.Warn("Replacing stale session lock", "path", path, "error", err)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
	}

	return nil, ErrLocked
}

// Inspect reads the lockfile in dir without taking it.
func Inspect(dir string) (Info, error) {
	content, err := os.ReadFile(Path(dir))
	if err != nil {
		return Info{}, err
	}
	return parse(string(content))
}

// Release removes the lockfile if it still names this session.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	holder, err := Inspect(filepath.Dir(l.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if holder.PID != l.info.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lockfile: %w", err)
	}
	return nil
}

func (l *Lock) Info() Info {
	return l.info
}

func format(info Info) string {
	return strconv.Itoa(info.PID) + "|" + info.Started.Format(time.RFC3339) + "\n"
}

func parse(content string) (Info, error) {
	parts := strings.Split(strings.TrimSpace(content), "|")
	if len(parts) != 2 {
		return Info{}, errors.New("lockfile is malformed")
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return Info{}, errors.New("invalid process ID in lockfile")
	}
	started, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return Info{}, errors.New("invalid start time in lockfile")
	}
	return Info{PID: pid, Started: started}, nil
}

func recentlyModified(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < unreadableGrace
}

func alive(pid int) bool {
	process, err := findProcessFunc(pid)
	return err == nil && process != nil
}
