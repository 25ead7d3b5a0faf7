package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ostehost/command-central-sub001/internal/utils"
)

const defaultFilePerms = 0o600

// FileFilterStore keeps extension filters in a single JSON document.
type FileFilterStore struct {
	Path string
}

// NewFileFilterStore returns a store writing to path.
func NewFileFilterStore(path string) *FileFilterStore {
	return &FileFilterStore{Path: path}
}

// Load returns the stored filters. A missing file is an empty state.
func (s *FileFilterStore) Load() (map[string][]string, error) {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var payload struct {
		Workspaces map[string][]string `json:"workspaces"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if payload.Workspaces == nil {
		return map[string][]string{}, nil
	}
	return payload.Workspaces, nil
}

// Save replaces the document atomically.
func (s *FileFilterStore) Save(state map[string][]string) error {
	payload := struct {
		Workspaces map[string][]string `json:"workspaces"`
	}{Workspaces: state}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.Path, data, defaultFilePerms)
}
