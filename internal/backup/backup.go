package backup

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
)

// SnapshotVersion is the envelope format written by CreateBackup.
const SnapshotVersion = 1

var ErrChecksumMismatch = errors.New("backup checksum mismatch")

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// envelope is the on-disk form of a backup. Habits holds the msgpack
// encoding of the collection so the checksum covers exactly those bytes.
type envelope struct {
	Version   int       `msgpack:"version"`
	CreatedAt time.Time `msgpack:"created_at"`
	Count     int       `msgpack:"count"`
	Checksum  []byte    `msgpack:"checksum"`
	Habits    []byte    `msgpack:"habits"`
}

// Manager handles backup operations
type Manager struct {
	backupDir string
	clock     clock.Clock
}

// NewManager creates a backup manager storing snapshots under configDir/backups.
func NewManager(configDir string, c clock.Clock) *Manager {
	if c == nil {
		c = clock.System{}
	}
	return &Manager{
		backupDir: filepath.Join(configDir, constants.BackupDirName),
		clock:     c,
	}
}

// GetBackupDir returns the backup directory path
func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

func (m *Manager) ensureBackupDir() error {
	return os.MkdirAll(m.backupDir, 0700)
}

// uniquePath picks prefix-YYYYMMDD-HHMM<suffix>, falling back to seconds and
// then a counter when that name is taken.
func (m *Manager) uniquePath(prefix, suffix string) (string, error) {
	now := m.clock.Now()
	name := func(stamp string) string {
		return filepath.Join(m.backupDir, prefix+stamp+suffix)
	}

	path := name(now.Format("20060102-1504"))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	stamp := now.Format("20060102-150405")
	path = name(stamp)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		path = name(fmt.Sprintf("%s-%d", stamp, counter))
	}
}

// CreateBackup snapshots the collection and prunes the oldest backups beyond MaxBackups.
func (m *Manager) CreateBackup(habits []models.Habit) (string, error) {
	return m.createBackup(habits, false)
}

// createBackup skips rotation for the safety copy taken before a restore.
func (m *Manager) createBackup(habits []models.Habit, skipRotation bool) (string, error) {
	if err := m.ensureBackupDir(); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	if habits == nil {
		habits = []models.Habit{}
	}
	packed, err := msgpack.Marshal(habits)
	if err != nil {
		return "", fmt.Errorf("failed to encode habits: %w", err)
	}
	sum := sha256.Sum256(packed)

	data, err := msgpack.Marshal(envelope{
		Version:   SnapshotVersion,
		CreatedAt: m.clock.Now().UTC(),
		Count:     len(habits),
		Checksum:  sum[:],
		Habits:    packed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}

	path, err := m.uniquePath(constants.BackupFilePrefix, constants.BackupFileSuffix)
	if err != nil {
		return "", err
	}
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	logger.Info("Backup created", "path", path, "habits", len(habits))

	if !skipRotation {
		if err := m.rotateBackups(); err != nil {
			logger.Warn("Failed to rotate old backups", "error", err)
		}
	}

	return path, nil
}

// SaveCorrupt keeps an unreadable storage blob next to the backups so it can
// be inspected or repaired by hand. It is never rotated.
func (m *Manager) SaveCorrupt(raw []byte) (string, error) {
	if err := m.ensureBackupDir(); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path, err := m.uniquePath(constants.CorruptFilePrefix, ".json")
	if err != nil {
		return "", err
	}
	if err := writeFile(path, raw); err != nil {
		return "", fmt.Errorf("failed to save corrupt data: %w", err)
	}
	logger.Warn("Saved unreadable habit data", "path", path, "bytes", len(raw))
	return path, nil
}

// ListBackups returns all backups, newest first.
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	if _, err := os.Stat(m.backupDir); os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
			continue
		}

		timestamp, ok := parseStamp(strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix))
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Path:      filepath.Join(m.backupDir, name),
			Timestamp: timestamp,
			Size:      info.Size(),
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// parseStamp reads YYYYMMDD-HHMM or YYYYMMDD-HHMMSS, optionally followed by a
// -N counter.
func parseStamp(s string) (time.Time, bool) {
	parts := strings.Split(s, "-")
	if len(parts) == 3 {
		s = parts[0] + "-" + parts[1]
	}
	for _, layout := range []string{"20060102-1504", "20060102-150405"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// rotateBackups removes old backups beyond the retention limit
func (m *Manager) rotateBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}

	for i := constants.MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
		logger.Debug("Rotated backup", "path", backups[i].Path)
	}

	return nil
}

// LoadBackup reads and verifies a snapshot.
func (m *Manager) LoadBackup(path string) ([]models.Habit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	if env.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported backup version %d", env.Version)
	}
	sum := sha256.Sum256(env.Habits)
	if !bytes.Equal(sum[:], env.Checksum) {
		return nil, ErrChecksumMismatch
	}

	var habits []models.Habit
	if err := msgpack.Unmarshal(env.Habits, &habits); err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	if len(habits) != env.Count {
		return nil, fmt.Errorf("backup holds %d habits, header says %d", len(habits), env.Count)
	}
	for i := range habits {
		if habits[i].CompletedDates == nil {
			habits[i].CompletedDates = []string{}
		}
	}
	return habits, nil
}

// Restore loads the snapshot at path after saving the current collection as a
// fresh backup. The caller installs the returned habits.
func (m *Manager) Restore(path string, current []models.Habit) ([]models.Habit, string, error) {
	habits, err := m.LoadBackup(path)
	if err != nil {
		return nil, "", err
	}

	safety, err := m.createBackup(current, true)
	if err != nil {
		return nil, "", fmt.Errorf("failed to back up current habits before restore: %w", err)
	}
	return habits, safety, nil
}

// Resolve accepts either a path or a backup file name inside the backup directory.
func (m *Manager) Resolve(ref string) string {
	if strings.ContainsRune(ref, filepath.Separator) {
		return ref
	}
	return filepath.Join(m.backupDir, ref)
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
