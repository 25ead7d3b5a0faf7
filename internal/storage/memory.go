package storage

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ostehost/command-central-sub001/internal/models"
)

// MemoryAdapter keeps everything in process memory. Used by tests and by
// storage_type "memory".
type MemoryAdapter struct {
	mu     sync.RWMutex
	doc    *Document
	closed bool
}

// NewMemoryAdapter returns an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{doc: NewDocument()}
}

// NewMemoryAdapterFromDocument seeds an adapter, e.g. from a Backup, to
// simulate a restart against the same store.
func NewMemoryAdapterFromDocument(doc *Document) *MemoryAdapter {
	return &MemoryAdapter{doc: doc.clone()}
}

func (a *MemoryAdapter) EnsureRepository(_ context.Context, rootPath, displayName string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	return a.doc.ensureRepository(filepath.Clean(rootPath), displayName), nil
}

func (a *MemoryAdapter) Save(_ context.Context, repoID int64, records []models.DeletedFileRecord) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	return a.doc.save(repoID, records)
}

func (a *MemoryAdapter) Load(_ context.Context, repoID int64) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.load(repoID)
}

func (a *MemoryAdapter) QueryByRepository(_ context.Context, rootPath string) ([]models.DeletedFileRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryByRepository(filepath.Clean(rootPath)), nil
}

func (a *MemoryAdapter) QueryByTimeRange(_ context.Context, start, end int64) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryByTimeRange(start, end), nil
}

func (a *MemoryAdapter) QueryRecent(_ context.Context, limit int) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.queryRecent(limit), nil
}

func (a *MemoryAdapter) Stats(_ context.Context) (Stats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Stats{}, ErrClosed
	}
	return a.doc.stats("memory"), nil
}

func (a *MemoryAdapter) Backup(_ context.Context) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.doc.Encode(false)
}

func (a *MemoryAdapter) Compact(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.doc.compact()
	return nil
}

func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
