package main

import (
	"errors"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/cli/backups"
	"github.com/julianstephens/habitual/internal/cli/habits"
	"github.com/julianstephens/habitual/internal/cli/system"
	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
)

var CLI struct {
	Version  kong.VersionFlag
	Config   string `help:"Config file path." type:"string" default:"${config_path}"`
	Storage  string `help:"Storage location overriding the config file: a .db or .json path, a PostgreSQL URL without a password, or 'keyring'." env:"HABITUAL_STORAGE"`
	Timezone string `help:"IANA timezone for daily and weekly resets, overriding the config file."`
	Debug    bool   `help:"Enable debug logging."`

	Init   system.InitCmd   `cmd:"" help:"Initialize habitual storage."`
	Tui    system.TuiCmd    `cmd:"" help:"Launch the interactive TUI." default:"1"`
	Add    habits.AddCmd    `cmd:"" help:"Add a habit."`
	Edit   habits.EditCmd   `cmd:"" help:"Edit a habit."`
	Delete habits.DeleteCmd `cmd:"" help:"Delete a habit."`
	Done   habits.DoneCmd   `cmd:"" help:"Toggle a habit's completion for the current window."`
	List   habits.ListCmd   `cmd:"" help:"List habits."`
	Show   habits.ShowCmd   `cmd:"" help:"Show one habit in detail."`
	Stats  habits.StatsCmd  `cmd:"" help:"Show completion statistics."`
	Log    habits.LogCmd    `cmd:"" help:"Show completion history as a grid."`
	Watch  habits.WatchCmd  `cmd:"" help:"Keep habits loaded and print resets as they happen."`
	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage habit backups."`
	Keyring  system.KeyringCmd `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Doctor   system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	DebugCmd system.DebugCmd   `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with streaks and automatic resets"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_path": constants.DefaultConfigPath,
		},
	)

	configPath, err := config.ExpandPath(CLI.Config)
	apperrors.Fatal(err)

	cfg, err := config.Load(configPath)
	apperrors.Fatal(err)
	if CLI.Storage != "" {
		cfg.Storage = CLI.Storage
	}
	if CLI.Timezone != "" {
		cfg.Timezone = CLI.Timezone
	}
	cfg.Debug = cfg.Debug || CLI.Debug
	apperrors.Fatal(cfg.Validate())

	if err := logger.Init(logger.Config{
		Debug:     cfg.Debug,
		ConfigDir: filepath.Dir(configPath),
		Quiet:     ctx.Command() == "tui",
	}); err != nil {
		apperrors.Fatalf("failed to initialize logger: %v", err)
	}

	loc, err := cfg.Location()
	apperrors.Fatal(err)

	store, err := cli.OpenStore(cfg.Storage)
	apperrors.Fatal(err)

	appCtx := cli.NewContext(cfg, configPath, store, clock.System{Location: loc})
	runErr := ctx.Run(appCtx)
	apperrors.Fatal(errors.Join(runErr, appCtx.Close()))
}
