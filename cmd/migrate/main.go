package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/viper"

	"github.com/engagemarket/backend/internal/config"
	"github.com/engagemarket/backend/internal/database"
	"github.com/engagemarket/backend/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	viper.AutomaticEnv()
	config.BindEnv()
	logging.Setup(viper.GetString("log.level"), viper.GetString("log.format"), os.Stdout)
	log := logging.For("migrate")

	cfg := database.GetConfig()
	log.Infof("[MIGRATE] connecting to %s@%s:%s/%s", cfg.User, cfg.Host, cfg.Port, cfg.Name)

	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Fatal("[MIGRATE] database unavailable")
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		log.WithError(err).Fatal("[MIGRATE] init failed")
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warnf("[MIGRATE] close: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("[MIGRATE] up failed")
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Info("[MIGRATE] no change: schema is up to date")
		} else {
			log.Info("[MIGRATE] migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.WithError(err).Fatal("[MIGRATE] rollback failed")
		}
		log.Info("[MIGRATE] rolled back last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("[MIGRATE] goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.WithError(err).Fatal("[MIGRATE] invalid version")
		}
		if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatalf("[MIGRATE] migrate to %d failed", version)
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Infof("[MIGRATE] no change: already at version %d", version)
		} else {
			log.Infof("[MIGRATE] migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Info("[MIGRATE] no migrations applied yet")
		case err != nil:
			log.WithError(err).Fatal("[MIGRATE] read version failed")
		default:
			log.WithField("dirty", dirty).Infof("[MIGRATE] current version %d", version)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current schema version")
}
