package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/utils"
)

const filePerms = 0o600

// FileAdapter stores the whole Document as one JSON file. Every mutation is
// applied to a copy, written atomically, and only then made current.
type FileAdapter struct {
	mu     sync.RWMutex
	path   string
	doc    *Document
	closed bool
}

// NewFileAdapter opens or creates the document at path.
func NewFileAdapter(path string) (*FileAdapter, error) {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return &FileAdapter{path: path, doc: doc}, nil
}

// Path returns the backing file.
func (a *FileAdapter) Path() string { return a.path }

func (a *FileAdapter) write(doc *Document) error {
	data, err := doc.Encode(true)
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(a.path, data, filePerms); err != nil {
		return fmt.Errorf("write %s: %w", a.path, err)
	}
	return nil
}

// mutate runs fn against a copy and commits it once written.
func (a *FileAdapter) mutate(fn func(*Document) (bool, error)) error {
	if a.closed {
		return ErrClosed
	}
	next := a.doc.clone()
	changed, err := fn(next)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := a.write(next); err != nil {
		return err
	}
	a.doc = next
	return nil
}

func (a *FileAdapter) EnsureRepository(_ context.Context, rootPath, displayName string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	root := filepath.Clean(rootPath)
	var id int64
	err := a.mutate(func(doc *Document) (bool, error) {
		_, existed := doc.Repos[root]
		id = doc.ensureRepository(root, displayName)
		return !existed, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (a *FileAdapter) Save(_ context.Context, repoID int64, records []models.DeletedFileRecord) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inserted := 0
	err := a.mutate(func(doc *Document) (bool, error) {
		n, err := doc.save(repoID, records)
		inserted = n
		return n > 0, err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (a *FileAdapter) Load(_ context.Context, repoID int64) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.load(repoID)
}

func (a *FileAdapter) QueryByRepository(_ context.Context, rootPath string) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryByRepository(filepath.Clean(rootPath)), nil
}

func (a *FileAdapter) QueryByTimeRange(_ context.Context, start, end int64) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryByTimeRange(start, end), nil
}

func (a *FileAdapter) QueryRecent(_ context.Context, limit int) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryRecent(limit), nil
}

func (a *FileAdapter) Stats(_ context.Context) (Stats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Stats{}, ErrClosed
	}
	return a.doc.stats("file"), nil
}

func (a *FileAdapter) Backup(_ context.Context) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.Encode(false)
}

// Compact rewrites the file with records in insertion order.
func (a *FileAdapter) Compact(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mutate(func(doc *Document) (bool, error) {
		doc.compact()
		return true, nil
	})
}

func (a *FileAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
