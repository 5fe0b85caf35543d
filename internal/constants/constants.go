package constants

import "time"

const (
	AppName            = "habitual"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/habitual/config.yaml"
	DefaultStorePath   = "~/.config/habitual/habitual.db"
	Version            = "v0.3.0"

	// StorageKey is the key the habit collection is persisted under.
	StorageKey = "@habits_storage"

	// DateFormat is the calendar-day marker format (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimestampFormat is the ISO-8601 form used for persisted timestamps (always UTC, millisecond precision)
	TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

	// Habit defaults
	DefaultColor     = "#8B5CF6"
	DefaultFrequency = "daily"

	// Reset polling
	DefaultPollInterval = time.Second
	MinPollInterval     = 100 * time.Millisecond

	// Persistence
	WriteMaxRetries = 3
	WriteRetryDelay = 100 * time.Millisecond
	WriteTimeout    = 10 * time.Second
	ReadTimeout     = 5 * time.Second

	// Backup constants
	MaxBackups        = 14
	BackupDirName     = "backups"
	BackupFilePrefix  = "habitual-"
	BackupFileSuffix  = ".msgpack"
	CorruptFilePrefix = "habitual-corrupt-"

	// Session lock
	LockfileName = "habitual.lock"

	// Log defaults
	LogDays = 14
)

// Palette is the set of accent colors offered when creating a habit.
var Palette = []string{
	"#EF4444",
	"#F59E0B",
	"#10B981",
	"#3B82F6",
	"#8B5CF6",
	"#EC4899",
	"#14B8A6",
	"#F97316",
}
