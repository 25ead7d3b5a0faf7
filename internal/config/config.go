// Package config loads changetree configuration from YAML, git config and
// command-line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/theme"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"gopkg.in/yaml.v3"
)

const appName = "changetree"

// AppConfig holds the effective configuration.
type AppConfig struct {
	DebugLog string
	LogLevel string

	FileCap   int
	Grouping  bool
	SortOrder models.SortOrder

	RefreshDebounce time.Duration
	RootsDebounce   time.Duration
	StatusCacheTTL  time.Duration
	StatusTimeout   time.Duration

	BreakerMaxAttempts int
	BreakerWindow      time.Duration

	AutoRefresh bool

	StorageType     string
	StoragePath     string
	FilterStatePath string
	MetricsAddr     string
	Theme           string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		LogLevel:           log.LevelDefault,
		FileCap:            500,
		Grouping:           true,
		SortOrder:          models.SortNewestFirst,
		RefreshDebounce:    150 * time.Millisecond,
		RootsDebounce:      500 * time.Millisecond,
		StatusCacheTTL:     2 * time.Second,
		StatusTimeout:      200 * time.Millisecond,
		BreakerMaxAttempts: 10,
		BreakerWindow:      60 * time.Second,
		AutoRefresh:        true,
		StorageType:        storage.TypeSQLite,
		StoragePath:        utils.DataDir(appName),
		Theme:              theme.DraculaName,
	}
}

// knownKeys lists every accepted configuration key.
var knownKeys = map[string]struct{}{
	"debug_log":              {},
	"log_level":              {},
	"file_cap":               {},
	"grouping":               {},
	"sort_order":             {},
	"refresh_debounce_ms":    {},
	"roots_debounce_ms":      {},
	"status_cache_ttl_ms":    {},
	"status_timeout_ms":      {},
	"breaker_max_attempts":   {},
	"breaker_window_seconds": {},
	"auto_refresh":           {},
	"storage_type":           {},
	"storage_path":           {},
	"filter_state_path":      {},
	"metrics_addr":           {},
	"theme":                  {},
}

// KnownKeys returns the accepted configuration keys, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func coerceBool(value any, defaultVal bool) bool {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		text := strings.ToLower(strings.TrimSpace(v))
		switch text {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultVal
}

func coerceInt(value any, defaultVal int) int {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return defaultVal
	case int:
		return v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return defaultVal
		}
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	return defaultVal
}

// coercePositive is coerceInt that rejects zero and negative values.
func coercePositive(value any, defaultVal int) int {
	if n := coerceInt(value, defaultVal); n > 0 {
		return n
	}
	return defaultVal
}

func coerceString(value any, defaultVal string) string {
	if value == nil {
		return defaultVal
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return defaultVal
}

func coerceDuration(value any, defaultVal, unit time.Duration) time.Duration {
	n := coercePositive(value, int(defaultVal/unit))
	return time.Duration(n) * unit
}

// apply layers data over cfg; keys absent from data keep their value.
func (cfg *AppConfig) apply(data map[string]any) {
	if v, ok := data["debug_log"]; ok {
		cfg.DebugLog = coerceString(v, cfg.DebugLog)
	}
	if v, ok := data["log_level"]; ok {
		cfg.LogLevel = strings.ToLower(coerceString(v, cfg.LogLevel))
	}
	if v, ok := data["file_cap"]; ok {
		cfg.FileCap = coercePositive(v, cfg.FileCap)
	}
	if v, ok := data["grouping"]; ok {
		cfg.Grouping = coerceBool(v, cfg.Grouping)
	}
	if v, ok := data["sort_order"]; ok {
		cfg.SortOrder = models.ParseSortOrder(strings.ToLower(coerceString(v, string(cfg.SortOrder))))
	}
	if v, ok := data["refresh_debounce_ms"]; ok {
		cfg.RefreshDebounce = coerceDuration(v, cfg.RefreshDebounce, time.Millisecond)
	}
	if v, ok := data["roots_debounce_ms"]; ok {
		cfg.RootsDebounce = coerceDuration(v, cfg.RootsDebounce, time.Millisecond)
	}
	if v, ok := data["status_cache_ttl_ms"]; ok {
		cfg.StatusCacheTTL = coerceDuration(v, cfg.StatusCacheTTL, time.Millisecond)
	}
	if v, ok := data["status_timeout_ms"]; ok {
		cfg.StatusTimeout = coerceDuration(v, cfg.StatusTimeout, time.Millisecond)
	}
	if v, ok := data["breaker_max_attempts"]; ok {
		cfg.BreakerMaxAttempts = coercePositive(v, cfg.BreakerMaxAttempts)
	}
	if v, ok := data["breaker_window_seconds"]; ok {
		cfg.BreakerWindow = coerceDuration(v, cfg.BreakerWindow, time.Second)
	}
	if v, ok := data["auto_refresh"]; ok {
		cfg.AutoRefresh = coerceBool(v, cfg.AutoRefresh)
	}
	if v, ok := data["storage_type"]; ok {
		cfg.StorageType = strings.ToLower(coerceString(v, cfg.StorageType))
	}
	if v, ok := data["storage_path"]; ok {
		cfg.StoragePath = expandOr(coerceString(v, cfg.StoragePath))
	}
	if v, ok := data["filter_state_path"]; ok {
		cfg.FilterStatePath = expandOr(coerceString(v, cfg.FilterStatePath))
	}
	if v, ok := data["metrics_addr"]; ok {
		cfg.MetricsAddr = coerceString(v, cfg.MetricsAddr)
	}
	if v, ok := data["theme"]; ok {
		cfg.Theme = strings.ToLower(coerceString(v, cfg.Theme))
	}
}

func expandOr(path string) string {
	if path == "" {
		return ""
	}
	if expanded, err := utils.ExpandPath(path); err == nil {
		return expanded
	}
	return path
}

func parseConfig(data map[string]any) *AppConfig {
	cfg := DefaultConfig()
	cfg.apply(data)
	return cfg
}

// Validate reports settings that cannot be used.
func (cfg *AppConfig) Validate() error {
	switch cfg.StorageType {
	case storage.TypeSQLite, storage.TypeFile, storage.TypeMemory:
	default:
		return fmt.Errorf("invalid storage_type %q: expected sqlite, file or memory", cfg.StorageType)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", log.LevelNone:
	default:
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if !slices.Contains(theme.AvailableThemes(), cfg.Theme) {
		return fmt.Errorf("invalid theme %q: expected one of %s", cfg.Theme, strings.Join(theme.AvailableThemes(), ", "))
	}
	if cfg.StorageType != storage.TypeMemory && cfg.StoragePath == "" {
		return fmt.Errorf("storage_path is required for %s storage", cfg.StorageType)
	}
	return nil
}

// StorageOptions returns the adapter selection for storage.NewAdapterFromConfig.
func (cfg *AppConfig) StorageOptions() storage.Options {
	return storage.Options{Type: cfg.StorageType, Dir: cfg.StoragePath}
}

// FilterStateFile returns where extension filters are persisted.
func (cfg *AppConfig) FilterStateFile() string {
	if cfg.FilterStatePath != "" {
		return cfg.FilterStatePath
	}
	return filepath.Join(cfg.StoragePath, models.FilterStateFilename)
}

// ApplyCLIOverrides applies repeatable key=value overrides on top of cfg.
func (cfg *AppConfig) ApplyCLIOverrides(overrides []string) error {
	data, err := parseCLIConfigOverrides(overrides)
	if err != nil {
		return err
	}
	cfg.apply(data)
	return nil
}

// ApplyGitConfig layers the changetree.* keys of a repository's git config
// over cfg. A path outside any repository changes nothing.
func (cfg *AppConfig) ApplyGitConfig(repoPath string) error {
	if !isInGitRepo(repoPath) {
		return nil
	}
	data, err := loadGitConfig(false, repoPath)
	if err != nil {
		return fmt.Errorf("read git config: %w", err)
	}
	cfg.apply(data)
	return nil
}

func getConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// LoadConfig reads the configuration file. An explicit path must live inside
// the changetree config directory. A missing file yields the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	configBase := filepath.Clean(filepath.Join(getConfigDir(), appName))

	var paths []string
	if configPath != "" {
		expanded, err := utils.ExpandPath(configPath)
		if err != nil {
			return DefaultConfig(), err
		}
		absPath, err := filepath.Abs(expanded)
		if err != nil {
			return DefaultConfig(), err
		}
		if !isPathWithin(configBase, absPath) {
			return DefaultConfig(), fmt.Errorf("config path must reside inside %s", configBase)
		}
		paths = []string{absPath}
	} else {
		paths = []string{
			filepath.Join(configBase, "config.yaml"),
			filepath.Join(configBase, "config.yml"),
		}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		// #nosec G304 -- path is constrained to the config directory after validation
		data, err := os.ReadFile(path)
		if err != nil {
			return DefaultConfig(), fmt.Errorf("read config %s: %w", path, err)
		}

		var yamlData map[string]any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
		}
		return parseConfig(yamlData), nil
	}

	return DefaultConfig(), nil
}

func isPathWithin(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
