package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ostehost/command-central-sub001/internal/app"
	"github.com/ostehost/command-central-sub001/internal/coordinator"
	"github.com/ostehost/command-central-sub001/internal/git"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/provider"
	"github.com/ostehost/command-central-sub001/internal/theme"
	"github.com/ostehost/command-central-sub001/internal/utils"
	urfavecli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	readyPollInterval = 50 * time.Millisecond
	readyTimeout      = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

func uiCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "ui",
		Usage:     "Browse the change tree interactively",
		ArgsUsage: "[path]",
		Flags: []urfavecli.Flag{
			&urfavecli.StringSliceFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace folder to search for repositories (repeatable, default: working directory)",
			},
		},
		Action: runUI,
	}
}

// runDefault opens the UI on a terminal and prints the tree otherwise.
func runDefault(ctx context.Context, cmd *urfavecli.Command) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return runUI(ctx, cmd)
	}
	return runTree(ctx, cmd)
}

func runUI(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		target, err := uiTarget(cmd.Args().First())
		if err != nil {
			return err
		}
		folders := cmd.StringSlice("workspace")
		if len(folders) == 0 {
			folders = []string{targetDir(target)}
		}
		roots, err := env.discoverRoots(ctx, folders)
		if err != nil {
			return err
		}
		match, ok := git.FindRepositoryForFile(target, roots)
		if !ok {
			return fmt.Errorf("no git repository found for %s", target)
		}
		env.logger.Debug("resolved repository",
			zap.String("target", target),
			zap.String("root", match.Root),
			zap.String("strategy", string(match.Strategy)))

		var (
			providersMu sync.Mutex
			providers   = map[string]*provider.Provider{}
		)
		coord := coordinator.New(coordinator.Options{
			Factory: func(root string) (coordinator.Provider, error) {
				p := env.newProvider(root, env.cfg.AutoRefresh)
				providersMu.Lock()
				providers[filepath.Clean(root)] = p
				providersMu.Unlock()
				return p, nil
			},
			RefreshDebounce: env.cfg.RefreshDebounce,
			RootsDebounce:   env.cfg.RootsDebounce,
			Logger:          env.logger.Named("coordinator"),
		})
		defer coord.Close()

		if err := coord.ApplyRoots(roots); err != nil {
			env.logger.Warn("some repositories could not be opened", zap.Error(err))
		}
		slotID := filepath.Clean(match.Root)
		refresh := func() {
			if err := coord.RequestRefresh(slotID); err != nil {
				env.logger.Warn("refresh request failed", zap.Error(err))
			}
		}

		model := app.NewModel(app.Options{
			Title:   filepath.Base(match.Root),
			Theme:   theme.GetTheme(env.cfg.Theme),
			Refresh: refresh,
			Reload: func() {
				go coord.Reload(ctx)
			},
			ToggleExtension: func(item *models.ChangeItem) {
				ext := utils.ExtensionOf(item.Path)
				if ext == "" {
					return
				}
				env.filters.SetExtensionEnabled(slotID, ext, !env.filters.IsEnabled(slotID, ext))
				refresh()
			},
			HideDeleted: func(item *models.ChangeItem) {
				providersMu.Lock()
				p := providers[slotID]
				providersMu.Unlock()
				if p != nil && p.SetDeletedVisible(item.Path, false) {
					refresh()
				}
			},
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		// Send blocks until Run starts the event loop.
		go attachView(ctx, coord, slotID, p, model, target, env.logger)

		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running app: %w", err)
		}
		return nil
	})
}

// attachView registers the terminal view and, once the project is loaded,
// reveals target when it names a file.
func attachView(ctx context.Context, coord *coordinator.Coordinator, slotID string, p *tea.Program, m *app.Model, target string, logger *zap.Logger) {
	if _, err := coord.AddView(slotID, app.NewTerminalView(p, m)); err != nil {
		logger.Error("attach view failed", zap.Error(err))
		return
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	deadline := time.After(readyTimeout)
	for {
		for _, s := range coord.Slots() {
			if s.ID == slotID && s.Ready {
				coord.OnActiveFileChanged(target)
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			logger.Debug("project not ready, skipping reveal", zap.String("target", target))
			return
		case <-ticker.C:
		}
	}
}

func uiTarget(arg string) (string, error) {
	if arg == "" {
		return os.Getwd()
	}
	return filepath.Abs(arg)
}

// targetDir is target itself for directories and its parent otherwise.
func targetDir(target string) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target
	}
	return filepath.Dir(target)
}

// startMetricsServer serves /metrics on addr until the returned func is called.
// An empty addr disables it.
func startMetricsServer(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
