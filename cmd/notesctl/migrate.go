package main

import (
	"errors"
	"os"

	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/db"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the postgres note store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connString, err := postgresConnString()
		if err != nil {
			return err
		}
		return db.MigrateUp(connString)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connString, err := postgresConnString()
		if err != nil {
			return err
		}
		return db.MigrateDown(connString)
	},
}

func postgresConnString() (string, error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return "", err
	}
	if cfg.NoteStore != config.NoteStorePostgres {
		return "", errors.New("note_store is not postgres, nothing to migrate")
	}

	password := os.Getenv("NOTES_POSTGRES_PASSWORD")
	if password == "" {
		log.Debugln("NOTES_POSTGRES_PASSWORD not set, connecting without a password")
	}

	log.Debugf("migrating db [%s] on [%s:%s]", cfg.PostgresDBName, cfg.PostgresHost, cfg.PostgresPort)

	return db.ConnString(db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: password,
	}), nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
