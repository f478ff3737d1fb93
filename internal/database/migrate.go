package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/engagemarket/backend/internal/logging"
	"github.com/engagemarket/backend/migrations"
)

// NewMigrator builds a migrator over the embedded SQL files.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("init postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sql.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}

	log := logging.For("migrate")
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("[MIGRATE] schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.WithField("version", version).Info("[MIGRATE] migrations applied")
	return nil
}
