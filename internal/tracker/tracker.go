// Package tracker remembers files that vanished from a working tree, since
// the status query stops reporting them once they are gone.
package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"go.uber.org/zap"
)

// DeletedFileTracker is the only writer of the in-memory projection of
// deleted-file records. The projection advances only after the store
// accepted a write.
type DeletedFileTracker struct {
	mu     sync.RWMutex
	store  storage.Adapter
	clock  utils.Clock
	logger *zap.Logger

	roots   map[string]int64
	records map[int64]map[string]models.DeletedFileRecord
}

// New returns a tracker over store.
func New(store storage.Adapter, clock utils.Clock, logger *zap.Logger) *DeletedFileTracker {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &DeletedFileTracker{
		store:   store,
		clock:   clock,
		logger:  log.OrNop(logger),
		roots:   make(map[string]int64),
		records: make(map[int64]map[string]models.DeletedFileRecord),
	}
}

// EnsureRepository resolves the durable ID of rootPath and loads its records
// the first time it is seen.
func (t *DeletedFileTracker) EnsureRepository(ctx context.Context, rootPath, displayName string) (int64, error) {
	root := filepath.Clean(rootPath)
	t.mu.RLock()
	id, ok := t.roots[root]
	t.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := t.store.EnsureRepository(ctx, root, displayName)
	if err != nil {
		return 0, fmt.Errorf("ensure repository %s: %w", root, err)
	}
	t.mu.Lock()
	t.roots[root] = id
	t.mu.Unlock()

	if _, err := t.Load(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Save records every path of the snapshot that is not known yet. Known paths
// keep their original order and timestamp. Records without a timestamp get
// the current time; records without an order get the next one.
func (t *DeletedFileTracker) Save(ctx context.Context, repoID int64, snapshot []models.DeletedFileRecord) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := t.records[repoID]
	nextOrder := maxOrder(known) + 1
	now := t.clock.Now().UnixMilli()

	seen := make(map[string]struct{}, len(snapshot))
	var fresh []models.DeletedFileRecord
	for _, r := range snapshot {
		if r.Path == "" {
			continue
		}
		if _, ok := known[r.Path]; ok {
			continue
		}
		if _, dup := seen[r.Path]; dup {
			continue
		}
		seen[r.Path] = struct{}{}
		if r.Order <= 0 {
			r.Order = nextOrder
		}
		if r.Order >= nextOrder {
			nextOrder = r.Order + 1
		}
		if r.Timestamp <= 0 {
			r.Timestamp = now
		}
		r.IsVisible = true
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	inserted, err := t.store.Save(ctx, repoID, fresh)
	if err != nil {
		metrics.RecordPersistFailure()
		t.logger.Error("failed to persist deleted files",
			zap.Int64("repo_id", repoID), zap.Int("records", len(fresh)), zap.Error(err))
		return 0, err
	}
	metrics.RecordDeletedInserted(inserted)

	if inserted != len(fresh) {
		// the store already held some of these paths; take its version
		return inserted, t.reloadLocked(ctx, repoID)
	}
	if known == nil {
		known = make(map[string]models.DeletedFileRecord, len(fresh))
		t.records[repoID] = known
	}
	for _, r := range fresh {
		known[r.Path] = r
	}
	t.logger.Debug("tracked deleted files", zap.Int64("repo_id", repoID), zap.Int("inserted", inserted))
	return inserted, nil
}

// Load replaces the projection of repoID with the stored records. Every
// loaded record is visible.
func (t *DeletedFileTracker) Load(ctx context.Context, repoID int64) ([]models.DeletedFileRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.reloadLocked(ctx, repoID); err != nil {
		return nil, err
	}
	return sortedRecords(t.records[repoID], false), nil
}

func (t *DeletedFileTracker) reloadLocked(ctx context.Context, repoID int64) error {
	loaded, err := t.store.Load(ctx, repoID)
	if err != nil {
		return fmt.Errorf("load deleted files of repository %d: %w", repoID, err)
	}
	projection := make(map[string]models.DeletedFileRecord, len(loaded))
	for _, r := range loaded {
		r.IsVisible = true
		projection[r.Path] = r
	}
	t.records[repoID] = projection
	return nil
}

// Lookup returns the record of path in repoID.
func (t *DeletedFileTracker) Lookup(repoID int64, path string) (models.DeletedFileRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[repoID][path]
	return r, ok
}

// Records returns a snapshot of all records of repoID in insertion order.
func (t *DeletedFileTracker) Records(repoID int64) []models.DeletedFileRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedRecords(t.records[repoID], false)
}

// VisibleRecords returns the visible records of repoID in insertion order.
func (t *DeletedFileTracker) VisibleRecords(repoID int64) []models.DeletedFileRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedRecords(t.records[repoID], true)
}

// SetVisibility toggles the runtime visibility of one record. Nothing is
// persisted. It reports whether the record exists.
func (t *DeletedFileTracker) SetVisibility(repoID int64, path string, visible bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[repoID][path]
	if !ok {
		return false
	}
	r.IsVisible = visible
	t.records[repoID][path] = r
	return true
}

func maxOrder(records map[string]models.DeletedFileRecord) int64 {
	var m int64
	for _, r := range records {
		if r.Order > m {
			m = r.Order
		}
	}
	return m
}

func sortedRecords(records map[string]models.DeletedFileRecord, visibleOnly bool) []models.DeletedFileRecord {
	out := make([]models.DeletedFileRecord, 0, len(records))
	for _, r := range records {
		if visibleOnly && !r.IsVisible {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Path < out[j].Path
	})
	return out
}
