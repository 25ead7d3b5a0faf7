package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4/database"
)

// DefaultMigrationsTable tracks the applied version.
const DefaultMigrationsTable = "schema_migrations"

// ErrNilConfig is returned by WithInstance without a config.
var ErrNilConfig = errors.New("no config")

// Config configures the driver.
type Config struct {
	MigrationsTable string
	NoTxWrap        bool
}

// Driver implements database.Driver on top of an already opened
// ncruces/go-sqlite3 connection. golang-migrate's own sqlite3 driver pulls in
// mattn/go-sqlite3, which registers the same "sqlite3" driver name.
type Driver struct {
	db     *sql.DB
	locked atomic.Bool
	config *Config
}

// WithInstance wraps db and makes sure the version table exists.
func WithInstance(db *sql.DB, config *Config) (database.Driver, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if config.MigrationsTable == "" {
		config.MigrationsTable = DefaultMigrationsTable
	}
	d := &Driver{db: db, config: config}
	if err := d.ensureVersionTable(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureVersionTable() (err error) {
	if err = d.Lock(); err != nil {
		return err
	}
	defer func() {
		if e := d.Unlock(); e != nil {
			err = errors.Join(err, e)
		}
	}()

	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (version uint64, dirty bool);
	CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON %s (version);
	`, d.config.MigrationsTable, d.config.MigrationsTable)
	_, err = d.db.Exec(query)
	return err
}

// Open is unsupported; use WithInstance.
func (d *Driver) Open(_ string) (database.Driver, error) {
	return nil, errors.New("open not supported, use WithInstance")
}

// Close is a no-op: the connection belongs to the storage adapter.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) Lock() error {
	if !d.locked.CompareAndSwap(false, true) {
		return database.ErrLocked
	}
	return nil
}

func (d *Driver) Unlock() error {
	if !d.locked.CompareAndSwap(true, false) {
		return database.ErrNotLocked
	}
	return nil
}

// Run executes one migration file.
func (d *Driver) Run(migration io.Reader) error {
	body, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	query := string(body)
	if d.config.NoTxWrap {
		if _, err := d.db.Exec(query); err != nil {
			return &database.Error{OrigErr: err, Query: body}
		}
		return nil
	}
	return d.execInTx(query)
}

func (d *Driver) execInTx(query string, args ...any) error {
	tx, err := d.db.Begin()
	if err != nil {
		return &database.Error{OrigErr: err, Err: "transaction start failed"}
	}
	if _, err := tx.Exec(query, args...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	if err := tx.Commit(); err != nil {
		return &database.Error{OrigErr: err, Err: "transaction commit failed"}
	}
	return nil
}

func (d *Driver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return &database.Error{OrigErr: err, Err: "transaction start failed"}
	}

	query := "DELETE FROM " + d.config.MigrationsTable //nolint:gosec // table name from config
	if _, err := tx.Exec(query); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}

	// a dirty nil version is still recorded so a failed first migration is visible
	if version >= 0 || (version == database.NilVersion && dirty) {
		query = fmt.Sprintf(`INSERT INTO %s (version, dirty) VALUES (?, ?)`, d.config.MigrationsTable) //nolint:gosec // table name from config
		if _, err := tx.Exec(query, version, dirty); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return &database.Error{OrigErr: err, Query: []byte(query)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &database.Error{OrigErr: err, Err: "transaction commit failed"}
	}
	return nil
}

func (d *Driver) Version() (int, bool, error) {
	var (
		version int
		dirty   bool
	)
	query := "SELECT version, dirty FROM " + d.config.MigrationsTable + " LIMIT 1" //nolint:gosec // table name from config
	if err := d.db.QueryRow(query).Scan(&version, &dirty); err != nil {
		return database.NilVersion, false, nil
	}
	return version, dirty, nil
}

// Drop removes every table.
func (d *Driver) Drop() (err error) {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range tables {
		if err := d.execInTx("DROP TABLE " + t); err != nil {
			return err
		}
	}
	if len(tables) > 0 {
		if _, err := d.db.Exec("VACUUM"); err != nil {
			return &database.Error{OrigErr: err, Query: []byte("VACUUM")}
		}
	}
	return nil
}
