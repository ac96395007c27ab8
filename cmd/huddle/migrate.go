package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ammar1510/huddle/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema to the configured PostgreSQL database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := cfg.DSN()
		if err != nil {
			return err
		}
		if dsn == "" {
			return fmt.Errorf("migrate needs a postgres database, DB_TYPE is %s", cfg.DBType)
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.Apply(cmd.Context(), db); err != nil {
			return err
		}
		names, _ := migrations.Names()
		log.Info("Applied %d migrations", len(names))
		return nil
	},
}
