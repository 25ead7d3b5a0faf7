// Package migrations holds the SQLite schema of the deleted-file store and
// applies it with golang-migrate over an ncruces/go-sqlite3 connection.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var embeddedFS embed.FS

// FS returns the embedded migration files.
func FS() fs.FS {
	return embeddedFS
}

// Run applies every pending migration. Already up to date is not an error.
func Run(db *sql.DB) error {
	source, err := iofs.New(embeddedFS, ".")
	if err != nil {
		return err
	}
	driver, err := WithInstance(db, &Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied schema version.
func Version(db *sql.DB) (uint, bool, error) {
	source, err := iofs.New(embeddedFS, ".")
	if err != nil {
		return 0, false, err
	}
	driver, err := WithInstance(db, &Config{})
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}
