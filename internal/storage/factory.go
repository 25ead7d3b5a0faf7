package storage

import (
	"fmt"
	"path/filepath"

	"github.com/ostehost/command-central-sub001/internal/models"
)

const (
	TypeSQLite = "sqlite"
	TypeFile   = "file"
	TypeMemory = "memory"
)

// Options selects and locates an adapter.
type Options struct {
	Type string
	// Dir holds the backing file; the file name depends on Type.
	Dir string
}

// NewAdapterFromConfig builds the adapter named by opts.Type.
func NewAdapterFromConfig(opts Options) (Adapter, error) {
	switch opts.Type {
	case TypeMemory:
		return NewMemoryAdapter(), nil
	case TypeFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file storage requires storage_path to be set")
		}
		return NewFileAdapter(filepath.Join(opts.Dir, models.DeletedStateFilename))
	case TypeSQLite, "":
		if opts.Dir == "" {
			return nil, fmt.Errorf("sqlite storage requires storage_path to be set")
		}
		return NewSQLiteAdapter(filepath.Join(opts.Dir, models.DeletedDBFilename))
	default:
		return nil, fmt.Errorf("unknown storage type: %s", opts.Type)
	}
}
