package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrate(connString string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, connString+"?sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("new migrate instance: %w", err)
	}

	return m, nil
}

// MigrateUp applies all pending migrations. No change is not an error.
func MigrateUp(connString string) error {
	m, err := newMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Infof("db migrated up, version: %d, dirty: %t", version, dirty)
	return nil
}

// MigrateDown rolls back a single migration step.
func MigrateDown(connString string) error {
	m, err := newMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}

	log.Infoln("db migrated one step down")
	return nil
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Warnf("close migrate source: %s", srcErr)
	}
	if dbErr != nil {
		log.Warnf("close migrate db: %s", dbErr)
	}
}
