// Package migrations applies the embedded schema migrations at startup.
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
var migrationFiles embed.FS

// RunMigrations brings the schema up to the embedded version. With
// autoMigrate false it only reports the current version and leaves the
// schema alone, for deployments where a DBA owns DDL.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read current migration version: %w", err)
	}

	if dirty {
		// A crash mid-migration leaves the version flagged dirty. Every
		// migration here is a transactional DDL batch, so the recorded
		// version is trustworthy and forcing it clears the flag.
		slog.Warn("Database migration state is dirty, recovering",
			"version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("recover dirty migration state at version %d: %w", version, err)
		}
		slog.Info("Recovered dirty migration state", "version", version)
	}

	if !autoMigrate {
		slog.Info("Auto-migration disabled, leaving schema as-is",
			"current_version", version)
		return nil
	}

	slog.Info("Running database migrations", "current_version", version)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Database schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read updated migration version: %w", err)
	}

	slog.Info("Database migrations completed",
		"from_version", version,
		"to_version", newVersion)
	return nil
}
