// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrationsDir returns the embedded directory holding the dialect's
// migrations.
func (d Dialect) migrationsDir() string {
	return "migrations/" + d.String()
}

// migrateDriver wraps db in the migrate driver of the dialect.
func (d Dialect) migrateDriver(db *sql.DB) (database.Driver, error) {
	switch d {
	case DialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})

	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{})

	default:
		return nil, fmt.Errorf("no migrations for dialect %v", d)
	}
}

// ApplyMigrations brings the ledger schema of db up to date. Running it on
// an up to date schema is a no-op.
func ApplyMigrations(db *sql.DB, dialect Dialect) error {
	source, err := iofs.New(migrationsFS, dialect.migrationsDir())
	if err != nil {
		return fmt.Errorf("load %v migrations: %w", dialect, err)
	}

	driver, err := dialect.migrateDriver(db)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance(
		"iofs", source, dialect.String(), driver,
	)
	if err != nil {
		return fmt.Errorf("init %v migrations: %w", dialect, err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Tracef("Ledger %v schema already current", dialect)

	case err != nil:
		return fmt.Errorf("migrate %v ledger: %w", dialect, err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		log.Debugf("Ledger %v schema at version %d (dirty=%v)", dialect,
			version, dirty)
	}

	return nil
}
