package services

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/ostehost/command-central-sub001/internal/log"
	"go.uber.org/zap"
)

// ignoredWatchDirs are never descended into by the working tree watch.
var ignoredWatchDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".cache":       true,
}

// RepoWatcher turns filesystem activity inside one repository into a
// coalesced change-notification stream. Consumers debounce.
type RepoWatcher struct {
	root    string
	logger  *zap.Logger
	mu      sync.Mutex
	paths   map[string]struct{}
	watcher *fsnotify.Watcher
	events  chan struct{}
	done    chan struct{}
	started bool
}

// NewRepoWatcher creates a watcher for the repository at root.
func NewRepoWatcher(root string, logger *zap.Logger) *RepoWatcher {
	return &RepoWatcher{
		root:   root,
		logger: log.OrNop(logger),
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start registers the working tree and the git directory and begins
// forwarding events.
func (w *RepoWatcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.paths = make(map[string]struct{})
	w.started = true
	w.mu.Unlock()

	w.addWatchTree(w.root)
	// index and HEAD updates land directly in the git dir
	w.addWatchDir(filepath.Join(w.root, ".git"))

	go w.run(watcher)
	return nil
}

// Stop closes the watcher. It is safe to call more than once.
func (w *RepoWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.started = false
	close(w.done)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

// Events returns the notification channel. At most one notification is
// pending at a time.
func (w *RepoWatcher) Events() <-chan struct{} {
	return w.events
}

// Signal queues a notification unless one is already pending.
func (w *RepoWatcher) Signal() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.events <- struct{}{}:
	default:
	}
}

func (w *RepoWatcher) run(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				w.maybeWatchNewDir(event.Name)
			}
			w.Signal()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("repository watcher error", zap.String("root", w.root), zap.Error(err))
		}
	}
}

func (w *RepoWatcher) maybeWatchNewDir(path string) {
	if ignoredWatchDirs[filepath.Base(path)] {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	w.addWatchTree(path)
}

func (w *RepoWatcher) addWatchDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if _, ok := w.paths[path]; ok {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Debug("watch add failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.paths[path] = struct{}{}
}

func (w *RepoWatcher) addWatchTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && ignoredWatchDirs[d.Name()] {
			return filepath.SkipDir
		}
		w.addWatchDir(path)
		return nil
	})
}

// WatchedPaths returns how many directories are registered.
func (w *RepoWatcher) WatchedPaths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}
