package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ostehost/command-central-sub001/internal/app/services"
	"github.com/ostehost/command-central-sub001/internal/config"
	"github.com/ostehost/command-central-sub001/internal/git"
	"github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/provider"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/tracker"
	"github.com/ostehost/command-central-sub001/internal/utils"
	urfavecli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// setupDebugLog points the debug sink at path, expanding ~ and variables.
func setupDebugLog(stderr io.Writer, path string) {
	expanded, err := utils.ExpandPath(path)
	if err != nil {
		expanded = path
	}
	if err := log.SetFile(expanded); err != nil {
		fmt.Fprintf(stderr, "Error opening debug log file %q: %v\n", expanded, err)
	}
}

// loadCLIConfig layers the config file, the repository's git config and the
// command-line flags, in that order.
func loadCLIConfig(cmd *urfavecli.Command) (*config.AppConfig, error) {
	stderr := errWriter(cmd)

	// Set up debug logging before loading config
	debugLog := cmd.String("debug-log")
	if debugLog != "" {
		setupDebugLog(stderr, debugLog)
	}

	cfg, err := config.LoadConfig(cmd.String("config-file"))
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if cwd, err := os.Getwd(); err == nil {
		if err := cfg.ApplyGitConfig(cwd); err != nil {
			fmt.Fprintf(stderr, "Error reading git config: %v\n", err)
		}
	}

	if v := cmd.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := cmd.String("storage"); v != "" {
		cfg.StorageType = v
	}
	if v := cmd.String("theme"); v != "" {
		cfg.Theme = v
	}
	if v := cmd.String("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	// Apply CLI config overrides (highest precedence)
	if overrides := cmd.StringSlice("config"); len(overrides) > 0 {
		if err := cfg.ApplyCLIOverrides(overrides); err != nil {
			return nil, fmt.Errorf("error applying config overrides: %w", err)
		}
	}

	if debugLog == "" {
		if cfg.DebugLog != "" {
			setupDebugLog(stderr, cfg.DebugLog)
		} else {
			// No debug log configured, discard any buffered logs
			_ = log.SetFile("")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment holds the long-lived collaborators shared by every provider.
type environment struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	git     *git.Service
	store   storage.Adapter
	tracker *tracker.DeletedFileTracker
	filters *services.FilterStateManager
}

func newEnvironment(cfg *config.AppConfig) (*environment, error) {
	logger, err := log.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	store, err := storage.NewAdapterFromConfig(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &environment{
		cfg:     cfg,
		logger:  logger,
		git:     git.NewService(logger.Named("git"), cfg.StatusTimeout),
		store:   store,
		tracker: tracker.New(store, utils.RealClock{}, logger.Named("tracker")),
		filters: services.NewFilterStateManager(
			services.NewFileFilterStore(cfg.FilterStateFile()), logger.Named("filters")),
	}, nil
}

func (e *environment) newProvider(root string, watch bool) *provider.Provider {
	return provider.New(provider.Options{
		Root:               root,
		Source:             e.git,
		Tracker:            e.tracker,
		Filters:            e.filters,
		Logger:             e.logger.Named("provider"),
		FileCap:            e.cfg.FileCap,
		Grouping:           e.cfg.Grouping,
		Order:              e.cfg.SortOrder,
		CacheTTL:           e.cfg.StatusCacheTTL,
		BreakerMaxAttempts: e.cfg.BreakerMaxAttempts,
		BreakerWindow:      e.cfg.BreakerWindow,
		Watch:              watch,
	})
}

// discoverRoots maps the given folders, or the working directory, to repository roots.
func (e *environment) discoverRoots(ctx context.Context, folders []string) ([]string, error) {
	if len(folders) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		folders = []string{cwd}
	}
	abs := make([]string, 0, len(folders))
	for _, f := range folders {
		expanded, err := utils.ExpandPath(f)
		if err != nil {
			return nil, err
		}
		a, err := filepath.Abs(expanded)
		if err != nil {
			return nil, err
		}
		abs = append(abs, a)
	}
	return e.git.ListRepositories(ctx, abs)
}

func (e *environment) Close() error {
	err := e.store.Close()
	_ = e.logger.Sync()
	return err
}

func outWriter(cmd *urfavecli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *urfavecli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
