package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/themeshop/internal/config"
	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/logging"
)

var Version = "dev"

// app holds what every subcommand needs once the root command has run.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var dbPath string

	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operate the themeshop database and integrations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			a.cfg = cfg
			a.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
			}
			a.db = db
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default $THEMESHOP_DB_PATH)")

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(ordersCmd(a))
	rootCmd.AddCommand(votesCmd(a))
	rootCmd.AddCommand(backupCmd(a))
	rootCmd.AddCommand(usersCmd(a))
	return rootCmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Open already migrated the database.
			v, err := database.Version(a.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", a.cfg.DBPath, v)
			return nil
		},
	}
}
