// Package provider owns the change data of one project root: status cache,
// circuit breaker, classifier and the deletion tracker feed, and announces
// changes to whoever renders it.
package provider

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ostehost/command-central-sub001/internal/app/services"
	"github.com/ostehost/command-central-sub001/internal/git"
	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/tracker"
	"github.com/ostehost/command-central-sub001/internal/tree"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"go.uber.org/zap"
)

// Options wire a Provider. Tracker and Filters are shared between providers.
type Options struct {
	Root        string
	DisplayName string
	Source      services.StatusSource
	Tracker     *tracker.DeletedFileTracker
	Filters     *services.FilterStateManager
	Clock       utils.Clock
	Logger      *zap.Logger

	FileCap            int
	Grouping           bool
	Order              models.SortOrder
	CacheTTL           time.Duration
	BreakerMaxAttempts int
	BreakerWindow      time.Duration
	// Watch enables the filesystem change stream.
	Watch bool
	Stat  tree.StatFunc
}

// Provider is the data source of every view over one project root.
type Provider struct {
	root        string
	displayName string
	cache       *services.StatusCache
	breaker     *services.CircuitBreaker
	builder     *tree.Builder
	tracker     *tracker.DeletedFileTracker
	filters     *services.FilterStateManager
	clock       utils.Clock
	logger      *zap.Logger
	bus         *Broadcaster
	grouping    bool
	order       models.SortOrder
	watch       bool

	// refreshMu keeps classification passes of this project sequential.
	refreshMu sync.Mutex

	mu      sync.RWMutex
	repoID  int64
	result  tree.Result
	paths   []string
	ready   bool
	watcher *services.RepoWatcher
	stop    chan struct{}
}

// New builds a provider; it does no I/O until Start or Refresh.
func New(opts Options) *Provider {
	clock := opts.Clock
	if clock == nil {
		clock = utils.RealClock{}
	}
	logger := log.OrNop(opts.Logger).With(zap.String("root", opts.Root))
	breaker := services.NewCircuitBreaker(opts.BreakerMaxAttempts, opts.BreakerWindow, clock, logger)
	displayName := opts.DisplayName
	if displayName == "" {
		displayName = filepath.Base(opts.Root)
	}

	var deleted tree.DeletedLookup
	if opts.Tracker != nil {
		deleted = opts.Tracker
	}
	return &Provider{
		root:        filepath.Clean(opts.Root),
		displayName: displayName,
		cache:       services.NewStatusCache(opts.Source, breaker, opts.CacheTTL, logger),
		breaker:     breaker,
		builder: tree.NewBuilder(tree.Options{
			FileCap: opts.FileCap,
			Stat:    opts.Stat,
			Deleted: deleted,
			Logger:  logger,
		}),
		tracker:  opts.Tracker,
		filters:  opts.Filters,
		clock:    clock,
		logger:   logger,
		bus:      NewBroadcaster(),
		grouping: opts.Grouping,
		order:    opts.Order,
		watch:    opts.Watch,
		result:   tree.Result{State: tree.StateEmpty, Index: tree.NewIndex(nil)},
		stop:     make(chan struct{}),
	}
}

// Root returns the project root.
func (p *Provider) Root() string { return p.root }

// DisplayName returns the label of the project.
func (p *Provider) DisplayName() string { return p.displayName }

// Subscribe returns a subscription to this provider's events.
func (p *Provider) Subscribe() Subscription { return p.bus.Subscribe() }

// Unsubscribe drops a subscription.
func (p *Provider) Unsubscribe(id string) { p.bus.Unsubscribe(id) }

// Start begins watching (when enabled) and runs the initial load in the
// background. EventDataReady announces its completion.
func (p *Provider) Start(ctx context.Context) error {
	if p.watch {
		w := services.NewRepoWatcher(p.root, p.logger)
		if err := w.Start(); err != nil {
			p.logger.Warn("change watcher unavailable", zap.Error(err))
		} else {
			p.mu.Lock()
			p.watcher = w
			p.mu.Unlock()
			go p.forwardWatchEvents(w)
		}
	}
	go p.Refresh(ctx)
	return nil
}

func (p *Provider) forwardWatchEvents(w *services.RepoWatcher) {
	for {
		select {
		case <-p.stop:
			return
		case _, ok := <-w.Events():
			if !ok {
				return
			}
			p.NotifyChanged()
		}
	}
}

// NotifyChanged drops cached status and announces EventDataChanged.
func (p *Provider) NotifyChanged() {
	p.cache.Invalidate(p.root)
	p.bus.Publish(Event{Type: EventDataChanged, Root: p.root})
}

// Close stops the watcher and closes all subscriptions.
func (p *Provider) Close() {
	p.mu.Lock()
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	p.bus.Close()
}

// Refresh rebuilds the tree, stores it and announces EventDataReady.
func (p *Provider) Refresh(ctx context.Context) tree.Result {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	res := p.load(ctx)

	p.mu.Lock()
	p.result = res
	p.ready = true
	p.mu.Unlock()

	p.bus.Publish(Event{Type: EventDataReady, Root: p.root})
	return res
}

// Result returns the latest build.
func (p *Provider) Result() tree.Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// Ready reports whether at least one refresh completed.
func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// RepoID returns the durable repository ID, 0 before the first refresh.
func (p *Provider) RepoID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.repoID
}

// CacheStats exposes the status cache counters.
func (p *Provider) CacheStats() services.CacheStats { return p.cache.Stats() }

// BreakerStatus exposes the circuit breaker state.
func (p *Provider) BreakerStatus() services.BreakerStatus { return p.breaker.Status() }

// FindItem returns the node for file, given absolute or relative to the root.
func (p *Provider) FindItem(file string) (models.Node, bool) {
	rel := file
	if filepath.IsAbs(file) {
		if !git.IsPathWithin(p.root, file) {
			return nil, false
		}
		r, err := filepath.Rel(p.root, file)
		if err != nil {
			return nil, false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)

	idx := p.Result().Index
	if idx == nil {
		return nil, false
	}
	node, ok := idx.FindByIdentity(rel)
	if !ok || node.Kind() != models.NodeChangeItem {
		return nil, false
	}
	return node, true
}

// SetDeletedVisible shows or hides the tracked deleted file path until the
// process exits. It reports whether path is a tracked deletion. The change
// shows on the next refresh.
func (p *Provider) SetDeletedVisible(path string, visible bool) bool {
	repoID := p.RepoID()
	if p.tracker == nil || repoID == 0 {
		return false
	}
	return p.tracker.SetVisibility(repoID, filepath.ToSlash(path), visible)
}

// AvailableExtensions counts the changed files of the last refresh per
// extension, before any extension filter applies.
func (p *Provider) AvailableExtensions() map[string]int {
	p.mu.RLock()
	paths := p.paths
	p.mu.RUnlock()
	return p.filters.AvailableExtensions(paths)
}

func (p *Provider) ensureRepository(ctx context.Context) (int64, error) {
	p.mu.RLock()
	id := p.repoID
	p.mu.RUnlock()
	if id != 0 || p.tracker == nil {
		return id, nil
	}
	id, err := p.tracker.EnsureRepository(ctx, p.root, p.displayName)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.repoID = id
	p.mu.Unlock()
	return id, nil
}

func (p *Provider) load(ctx context.Context) tree.Result {
	statuses, err := p.cache.GetBatchStatus(ctx, p.root)
	switch {
	case errors.Is(err, services.ErrCircuitOpen):
		p.logger.Info("status refresh skipped while the breaker is open")
		return tree.Result{State: tree.StateDisabled, Index: tree.NewIndex(nil), Err: err}
	case errors.Is(err, git.ErrNotGitRepo), errors.Is(err, fs.ErrNotExist):
		p.logger.Debug("no repository at root", zap.Error(err))
		return tree.Result{State: tree.StateNoRepository, Index: tree.NewIndex(nil), Err: err}
	case err != nil:
		p.logger.Error("status query failed", zap.Error(err))
		return tree.Result{State: tree.StateInternalError, Index: tree.NewIndex(nil), Err: err}
	}

	repoID, err := p.ensureRepository(ctx)
	if err != nil {
		p.logger.Error("repository registration failed", zap.Error(err))
		return tree.Result{State: tree.StateInternalError, Index: tree.NewIndex(nil), Err: err}
	}

	staged, unstaged, deleted, paths := splitStatus(statuses)
	p.trackDeletions(ctx, repoID, deleted)
	staged = p.dropHidden(repoID, staged)
	unstaged = p.dropHidden(repoID, unstaged)

	p.mu.Lock()
	p.paths = paths
	p.mu.Unlock()

	var allow map[string]struct{}
	if p.filters != nil {
		p.filters.RegisterWorkspace(p.root)
		p.filters.ValidateAndCleanFilter(p.root, paths)
		allow = p.filters.AllowSet(p.root)
	}

	return p.builder.Build(tree.Input{
		RepoID:   repoID,
		RepoRoot: p.root,
		Staged:   staged,
		Unstaged: unstaged,
		Order:    p.order,
		Allow:    allow,
		Grouping: p.grouping,
		Now:      p.clock.Now(),
	})
}

// dropHidden removes deleted files whose tracker record was hidden.
func (p *Provider) dropHidden(repoID int64, records []tree.Record) []tree.Record {
	if p.tracker == nil {
		return records
	}
	kept := records[:0:0]
	for _, r := range records {
		if git.IsDeleted(r.XY) {
			if rec, ok := p.tracker.Lookup(repoID, r.Path); ok && !rec.IsVisible {
				continue
			}
		}
		kept = append(kept, r)
	}
	return kept
}

// trackDeletions hands the complete set of currently deleted paths to the
// tracker; paths it already knows keep their first-seen record.
func (p *Provider) trackDeletions(ctx context.Context, repoID int64, deleted []string) {
	if p.tracker == nil || repoID == 0 || len(deleted) == 0 {
		return
	}
	snapshot := make([]models.DeletedFileRecord, len(deleted))
	for i, path := range deleted {
		snapshot[i] = models.DeletedFileRecord{Path: path}
	}
	// failures are logged by the tracker and retried on the next refresh
	_, _ = p.tracker.Save(ctx, repoID, snapshot)
}

// splitStatus separates staged from unstaged rows and collects the deleted
// and the reported paths, each sorted by path.
func splitStatus(statuses map[string]services.ParsedStatus) (staged, unstaged []tree.Record, deleted, paths []string) {
	keys := make([]string, 0, len(statuses))
	for path := range statuses {
		keys = append(keys, path)
	}
	sort.Strings(keys)

	for _, path := range keys {
		st := statuses[path]
		rec := tree.Record{
			Path:                 st.Path,
			OriginalPath:         st.OriginalPath,
			XY:                   st.XY,
			Category:             st.Category,
			Change:               st.Change,
			ModifiedAfterStaging: st.ModifiedAfterStaging,
		}
		if st.Category == models.CategoryStaged {
			staged = append(staged, rec)
		} else {
			unstaged = append(unstaged, rec)
		}
		if git.IsDeleted(st.XY) {
			deleted = append(deleted, st.Path)
		}
		paths = append(paths, st.Path)
	}
	return staged, unstaged, deleted, paths
}
