package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaoNguyen09/repo-explainer/internal/adapter/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL cache schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()
		if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
			return err
		}
		return printVersion(cmd, cfg.Postgres.DSN)
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()
		if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, migrateDownSteps); err != nil {
			return err
		}
		return printVersion(cmd, cfg.Postgres.DSN)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()
		return printVersion(cmd, cfg.Postgres.DSN)
	},
}

func printVersion(cmd *cobra.Command, dsn string) error {
	v, err := postgres.MigrationVersion(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVarP(&migrateDownSteps, "steps", "n", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}
