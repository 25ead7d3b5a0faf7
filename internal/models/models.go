// Package models defines the data objects shared across changetree packages.
package models

// Category is the section a change belongs to. Every status maps to exactly one.
type Category string

const (
	CategoryStaged    Category = "staged"
	CategoryUnstaged  Category = "unstaged"
	CategoryConflict  Category = "conflict"
	CategoryUntracked Category = "untracked"
)

// ChangeKind describes what happened to a path.
type ChangeKind string

const (
	KindModified  ChangeKind = "modified"
	KindAdded     ChangeKind = "added"
	KindDeleted   ChangeKind = "deleted"
	KindRenamed   ChangeKind = "renamed"
	KindCopied    ChangeKind = "copied"
	KindUntracked ChangeKind = "untracked"

	// Unmerged variants, one per git unmerged XY pair.
	KindBothDeleted    ChangeKind = "both-deleted"    // DD
	KindAddedByUs      ChangeKind = "added-by-us"     // AU
	KindDeletedByThem  ChangeKind = "deleted-by-them" // UD
	KindAddedByThem    ChangeKind = "added-by-them"   // UA
	KindDeletedByUs    ChangeKind = "deleted-by-us"   // DU
	KindBothAdded      ChangeKind = "both-added"      // AA
	KindBothModified   ChangeKind = "both-modified"   // UU
	KindUnknownChanged ChangeKind = "unknown"
)

// IsConflict reports whether the kind is one of the unmerged variants.
func (k ChangeKind) IsConflict() bool {
	switch k {
	case KindBothDeleted, KindAddedByUs, KindDeletedByThem, KindAddedByThem,
		KindDeletedByUs, KindBothAdded, KindBothModified:
		return true
	}
	return false
}

// StatusFile is a single row reported by the status query.
type StatusFile struct {
	Path         string
	XY           string // two-character porcelain code, '.' for unchanged
	OriginalPath string // rename/copy source
	Score        string // rename/copy similarity, e.g. "R100"
	Submodule    string
}

// SortOrder orders items inside a time bucket.
type SortOrder string

const (
	SortNewestFirst SortOrder = "newest"
	SortOldestFirst SortOrder = "oldest"
)

// ParseSortOrder maps a config value to a SortOrder, defaulting to newest first.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(s) == SortOldestFirst {
		return SortOldestFirst
	}
	return SortNewestFirst
}

// DeletedFileRecord is the durable trace of a file that disappeared from the working tree.
// Records are written once per (repository, path) and never updated in place.
type DeletedFileRecord struct {
	Path      string `json:"path"`
	Order     int64  `json:"order"`
	Timestamp int64  `json:"timestamp"` // ms since epoch

	// IsVisible is runtime state, defaulted to true on load and never persisted.
	IsVisible bool `json:"-"`
}

// RepositoryHandle maps a repository root to its durable integer ID.
type RepositoryHandle struct {
	ID          int64
	RootPath    string
	DisplayName string
}

const (
	// DeletedStateFilename stores the JSON-file storage adapter document.
	DeletedStateFilename = "deleted-files.json"
	// DeletedDBFilename stores the SQLite storage adapter database.
	DeletedDBFilename = "deleted-files.db"
	// FilterStateFilename stores enabled extension filters per workspace.
	FilterStateFilename = "extension-filters.json"
)
