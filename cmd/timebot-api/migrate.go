package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/timebot/core/bootstrap"
	coredatabase "github.com/m3rciful/timebot/core/database"
	"github.com/m3rciful/timebot/core/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		infra, err := bootstrap.Run(bootstrap.Options{Config: cfg.CoreConfig(), Database: &cfg.Database})
		if err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()
		return infra.Close()
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()
		return coredatabase.Rollback(cfg.Database, migrateDownSteps)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, dirty, err := coredatabase.MigrationVersion(cfg.Database)
		if err != nil {
			return err
		}
		suffix := ""
		if dirty {
			suffix = " (dirty)"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d%s\n", v, suffix)
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateDownCmd.Flags().IntVarP(&migrateDownSteps, "steps", "n", 1, "Number of migrations to revert")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
