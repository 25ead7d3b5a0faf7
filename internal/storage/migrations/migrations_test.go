package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Run(db))

	for _, table := range []string{"repositories", "deleted_files", "meta"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var next int64
	require.NoError(t, db.QueryRow(`SELECT value FROM meta WHERE key='next_repo_id'`).Scan(&next))
	assert.Equal(t, int64(1), next)
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestWithInstanceRequiresConfig(t *testing.T) {
	db := openTestDB(t)
	_, err := WithInstance(db, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestDriverLocking(t *testing.T) {
	db := openTestDB(t)
	drv, err := WithInstance(db, &Config{})
	require.NoError(t, err)

	require.NoError(t, drv.Lock())
	assert.Error(t, drv.Lock())
	require.NoError(t, drv.Unlock())
	assert.Error(t, drv.Unlock())
}
