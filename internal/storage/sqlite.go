package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/storage/migrations"
	"github.com/ostehost/command-central-sub001/internal/utils"
)

// SQLiteAdapter stores repositories and records in a SQLite database.
// Write-once is enforced by the (repo_id, path) primary key.
type SQLiteAdapter struct {
	conn   *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteAdapter opens the database at path, configures pragmas and runs
// migrations. The parent directory is created when missing.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if err := os.MkdirAll(filepath.Dir(path), utils.DefaultDirPerms); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection serializes writers and avoids SQLITE_BUSY between them
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrations.Run(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteAdapter{conn: conn, path: path}, nil
}

// Path returns the database file.
func (a *SQLiteAdapter) Path() string { return a.path }

func (a *SQLiteAdapter) begin(ctx context.Context) (*sql.Tx, error) {
	if a.closed {
		return nil, ErrClosed
	}
	return a.conn.BeginTx(ctx, nil)
}

func (a *SQLiteAdapter) EnsureRepository(ctx context.Context, rootPath, displayName string) (id int64, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	root := filepath.Clean(rootPath)

	tx, err := a.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `SELECT id FROM repositories WHERE root_path = ?`, root).Scan(&id)
	if err == nil {
		return id, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_repo_id'`).Scan(&id); err != nil {
		return 0, fmt.Errorf("read id allocator: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO repositories (id, root_path, display_name, next_order) VALUES (?, ?, ?, 1)`,
		id, root, displayName); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE meta SET value = ? WHERE key = 'next_repo_id'`, id+1); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *SQLiteAdapter) Save(ctx context.Context, repoID int64, records []models.DeletedFileRecord) (inserted int, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx, err := a.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var nextOrder int64
	err = tx.QueryRowContext(ctx, `SELECT next_order FROM repositories WHERE id = ?`, repoID).Scan(&nextOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("repository %d: %w", repoID, ErrUnknownRepository)
	}
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO deleted_files (repo_id, path, ord, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	startOrder := nextOrder
	for _, r := range records {
		if r.Path == "" {
			continue
		}
		order := r.Order
		if order <= 0 {
			order = nextOrder
		}
		res, execErr := stmt.ExecContext(ctx, repoID, r.Path, order, r.Timestamp)
		if execErr != nil {
			return 0, execErr
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue
		}
		inserted++
		if order >= nextOrder {
			nextOrder = order + 1
		}
	}

	if nextOrder != startOrder {
		if _, err = tx.ExecContext(ctx, `UPDATE repositories SET next_order = ? WHERE id = ?`, nextOrder, repoID); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanRecords(rows *sql.Rows) ([]models.DeletedFileRecord, error) {
	defer func() { _ = rows.Close() }()
	var out []models.DeletedFileRecord
	for rows.Next() {
		var r models.DeletedFileRecord
		if err := rows.Scan(&r.Path, &r.Order, &r.Timestamp); err != nil {
			return nil, err
		}
		r.IsVisible = true
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RepoID, &e.RepoRoot, &e.Path, &e.Order, &e.Timestamp); err != nil {
			return nil, err
		}
		e.IsVisible = true
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLiteAdapter) Load(ctx context.Context, repoID int64) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	var exists int
	err := a.conn.QueryRowContext(ctx, `SELECT 1 FROM repositories WHERE id = ?`, repoID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %d: %w", repoID, ErrUnknownRepository)
	}
	if err != nil {
		return nil, err
	}

	rows, err := a.conn.QueryContext(ctx,
		`SELECT path, ord, timestamp FROM deleted_files WHERE repo_id = ? ORDER BY ord ASC, path ASC`, repoID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (a *SQLiteAdapter) QueryByRepository(ctx context.Context, rootPath string) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	rows, err := a.conn.QueryContext(ctx, `
		SELECT d.path, d.ord, d.timestamp
		FROM deleted_files d JOIN repositories r ON r.id = d.repo_id
		WHERE r.root_path = ?
		ORDER BY d.ord ASC, d.path ASC`, filepath.Clean(rootPath))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

const entryColumns = `SELECT d.repo_id, r.root_path, d.path, d.ord, d.timestamp
		FROM deleted_files d JOIN repositories r ON r.id = d.repo_id`

const newestFirst = ` ORDER BY d.timestamp DESC, d.ord DESC, r.root_path ASC, d.path ASC`

func (a *SQLiteAdapter) QueryByTimeRange(ctx context.Context, start, end int64) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	rows, err := a.conn.QueryContext(ctx,
		entryColumns+` WHERE d.timestamp >= ? AND d.timestamp <= ?`+newestFirst, start, end)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (a *SQLiteAdapter) QueryRecent(ctx context.Context, limit int) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := a.conn.QueryContext(ctx, entryColumns+newestFirst+` LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (a *SQLiteAdapter) Stats(ctx context.Context) (Stats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Stats{}, ErrClosed
	}
	s := Stats{Backend: "sqlite"}
	if err := a.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM repositories`).Scan(&s.Repositories); err != nil {
		return Stats{}, err
	}
	var oldest, newest sql.NullInt64
	err := a.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM deleted_files`).Scan(&s.Records, &oldest, &newest)
	if err != nil {
		return Stats{}, err
	}
	s.OldestTimestamp = oldest.Int64
	s.NewestTimestamp = newest.Int64
	return s, nil
}

// Backup exports the database as a JSON Document.
func (a *SQLiteAdapter) Backup(ctx context.Context) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	doc := NewDocument()
	if err := a.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_repo_id'`).Scan(&doc.NextRepoID); err != nil {
		return nil, err
	}

	rows, err := a.conn.QueryContext(ctx, `SELECT id, root_path, display_name, next_order FROM repositories`)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*RepoDocument)
	for rows.Next() {
		var (
			root string
			repo RepoDocument
		)
		if err := rows.Scan(&repo.ID, &root, &repo.DisplayName, &repo.NextOrder); err != nil {
			_ = rows.Close()
			return nil, err
		}
		repo.Records = []models.DeletedFileRecord{}
		doc.Repos[root] = &repo
		byID[repo.ID] = &repo
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = a.conn.QueryContext(ctx,
		`SELECT repo_id, path, ord, timestamp FROM deleted_files ORDER BY repo_id, ord, path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			repoID int64
			r      models.DeletedFileRecord
		)
		if err := rows.Scan(&repoID, &r.Path, &r.Order, &r.Timestamp); err != nil {
			return nil, err
		}
		if repo, ok := byID[repoID]; ok {
			repo.Records = append(repo.Records, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc.Encode(false)
}

// Compact checkpoints the WAL and vacuums the database file.
func (a *SQLiteAdapter) Compact(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	if _, err := a.conn.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := a.conn.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.conn.Close()
}
