// Package utils holds small helpers shared across changetree packages.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDirPerms is used for directories changetree creates for its own state.
const DefaultDirPerms = 0o750

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path), nil
}

// DataDir returns the directory for durable application state.
func DataDir(app string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, app)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), app)
	}
	return filepath.Join(home, ".local", "share", app)
}

// ExtensionOf returns the lower-cased extension of path including the dot,
// or "" when the base name has none. Dotfiles like ".gitignore" have none.
func ExtensionOf(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(base[idx:])
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
