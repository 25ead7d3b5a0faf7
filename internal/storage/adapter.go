// Package storage is the durable persistence boundary for deleted-file
// records. Every Adapter honours the same contract: records are written once
// per (repository, path), and repository IDs are allocated sequentially from 1
// and never reused, surviving restarts.
package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/ostehost/command-central-sub001/internal/models"
)

var (
	// ErrUnknownRepository is returned for a repository ID that was never allocated.
	ErrUnknownRepository = errors.New("unknown repository")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("storage closed")
)

// Adapter persists repositories and their deleted-file records.
type Adapter interface {
	// EnsureRepository returns the durable ID for rootPath, allocating one on first sight.
	EnsureRepository(ctx context.Context, rootPath, displayName string) (int64, error)
	// Save inserts every record whose path is new for repoID and ignores the rest.
	// It returns how many records were inserted.
	Save(ctx context.Context, repoID int64, records []models.DeletedFileRecord) (int, error)
	// Load returns all records of repoID in insertion order.
	Load(ctx context.Context, repoID int64) ([]models.DeletedFileRecord, error)
	// QueryByRepository returns the records of the repository at rootPath.
	QueryByRepository(ctx context.Context, rootPath string) ([]models.DeletedFileRecord, error)
	// QueryByTimeRange returns records with start <= timestamp <= end, newest first.
	QueryByTimeRange(ctx context.Context, start, end int64) ([]Entry, error)
	// QueryRecent returns at most limit records, newest first.
	QueryRecent(ctx context.Context, limit int) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
	// Backup returns a full snapshot encoded as a JSON Document.
	Backup(ctx context.Context) ([]byte, error)
	// Compact reclaims space without losing data.
	Compact(ctx context.Context) error
	Close() error
}

// Entry is a record together with the repository it belongs to.
type Entry struct {
	RepoID   int64  `json:"repoId"`
	RepoRoot string `json:"repoRoot"`
	models.DeletedFileRecord
}

// Stats summarises the stored data.
type Stats struct {
	Backend         string `json:"backend"`
	Repositories    int    `json:"repositories"`
	Records         int    `json:"records"`
	OldestTimestamp int64  `json:"oldestTimestamp,omitempty"`
	NewestTimestamp int64  `json:"newestTimestamp,omitempty"`
}

// sortNewestFirst orders entries by timestamp, then order, then path, descending.
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.Order != b.Order {
			return a.Order > b.Order
		}
		if a.RepoRoot != b.RepoRoot {
			return a.RepoRoot < b.RepoRoot
		}
		return a.Path < b.Path
	})
}

// markVisible sets the runtime visibility flag that is never persisted.
func markVisible(records []models.DeletedFileRecord) []models.DeletedFileRecord {
	for i := range records {
		records[i].IsVisible = true
	}
	return records
}
