package main

import (
	"github.com/spf13/cobra"
	"github.com/sudo-init-do/agrihub/internal/db"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

func init() {
	RootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		// db.Init runs the idempotent schema ensures
		pool, err := db.Init(ctx, conf.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.NewSublogger("migrate").WithField("database", conf.Database.Name).Info("Schema is up to date")
		return nil
	},
}
