// Package migrator applies the embedded PostgreSQL schema migrations.
package migrator

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Migrator struct {
	migrate *migrate.Migrate
}

func New(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open migration target: %w", err)
	}
	return &Migrator{migrate: m}, nil
}

// Version returns the current schema version, 0 when no migration has run.
func (m *Migrator) Version() (int, error) {
	version, _, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("migrate.Version: %w", err)
	}
	return int(version), nil
}

// Up applies all pending migrations and returns the number applied.
func (m *Migrator) Up() (int, error) {
	before, err := m.Version()
	if err != nil {
		return 0, err
	}
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return 0, nil
		}
		return 0, fmt.Errorf("migrate.Up: %w", err)
	}
	after, err := m.Version()
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// Down rolls back a single migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		return fmt.Errorf("migrate.Steps(-1): %w", err)
	}
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
