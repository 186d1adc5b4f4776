// Package cli holds the cobra commands of the bot binary.
package cli

import (
	"fmt"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/config"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	version string
	cfg     *config.Config
	table   session.Table
}

// NewRootCmd creates the root command
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	rootCmd := &cobra.Command{
		Use:   "breakout-bot",
		Short: "Session breakout trading bot",
		Long: `breakout-bot trades breakouts of a reference hour's range during
configured daily sessions, with resilient streaming and crash-safe state.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newStateCmd(a))
	rootCmd.AddCommand(newJournalCmd(a))
	rootCmd.AddCommand(newSessionsCmd(a))
	rootCmd.AddCommand(newTokenCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("lang", "", "Message language (en, zh); overrides LANGUAGE")

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}

	level := cfg.LogLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	logger.SetGlobalLogLevel(level)

	lang := cfg.Language
	if v, _ := cmd.Flags().GetString("lang"); v != "" {
		lang = v
	}
	i18n.SetLanguage(i18n.Language(lang))

	table, err := cfg.Windows()
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	a.cfg, a.table = cfg, table
	return nil
}

func (a *app) today() string {
	return session.Date(a.now())
}

func (a *app) scheduler() *session.Scheduler {
	return session.NewScheduler(a.table, a.cfg.WeekendSpan())
}

func (a *app) stateManager() *state.Manager {
	return state.NewManager(state.NewStore(a.cfg.StatePath), a.table.IDs(), a.cfg.ResetReconnectsDaily)
}

func (a *app) openDB() (*db.Database, error) {
	database, err := db.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf(i18n.Get("DBInitFailed"), err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf(i18n.Get("DBMigrationsFailed"), err)
	}
	return database, nil
}

// newVersionCmd creates the version command
func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "breakout-bot %s\n", a.version)
		},
	}
}
