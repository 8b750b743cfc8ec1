// Package migrations owns the weather_cache schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var Files embed.FS

// Run applies pending migrations. With autoMigrate false it only reports the
// current version.
func Run(db *sql.DB, autoMigrate bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	src, err := iofs.New(Files, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("current migration version: %w", err)
	}
	if dirty {
		log.Warn("migrations dirty, forcing current version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("recover dirty version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		log.Info("auto-migration disabled", "version", version, "dirty", dirty)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema up to date", "version", version)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("updated migration version: %w", err)
	}
	log.Info("migrations applied", "from", version, "to", newVersion)
	return nil
}
