// Package completion provides the suggestions behind changetree's shell completion.
package completion

import (
	"strings"

	"github.com/ostehost/command-central-sub001/internal/config"
	"github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/theme"
)

// OverridePrefix is the optional namespace of --config overrides.
const OverridePrefix = "changetree."

// FlagValues returns the enumerated values of a global flag, or nil when the
// flag takes free-form input.
func FlagValues(flag string) []string {
	switch strings.TrimLeft(flag, "-") {
	case "theme", "t":
		return theme.AvailableThemes()
	case "storage":
		return []string{storage.TypeSQLite, storage.TypeFile, storage.TypeMemory}
	case "log-level":
		return logLevels()
	}
	return nil
}

// SuggestConfigKeys returns "changetree.key=" suggestions for keys starting with prefix.
func SuggestConfigKeys(prefix string) []string {
	prefix = strings.TrimPrefix(prefix, OverridePrefix)
	var matches []string
	for _, key := range config.KnownKeys() {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			matches = append(matches, OverridePrefix+key+"=")
		}
	}
	return matches
}

// SuggestConfigValues returns value suggestions for a config key.
func SuggestConfigValues(key string) []string {
	switch strings.TrimPrefix(key, OverridePrefix) {
	case "theme":
		return theme.AvailableThemes()
	case "sort_order":
		return []string{"newest", "oldest"}
	case "storage_type":
		return FlagValues("storage")
	case "log_level":
		return logLevels()
	case "grouping", "auto_refresh":
		return []string{"true", "false"}
	default:
		return nil
	}
}

func logLevels() []string {
	return []string{"debug", "info", "warn", "error", log.LevelNone}
}
